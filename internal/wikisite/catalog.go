// SPDX-License-Identifier: MIT

// Package wikisite resolves which Wikimedia dump dates are available
// and complete for an edition or a set of editions, and normalizes
// article titles into MediaWiki's canonical underscore form.
package wikisite

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// Edition identifies one Wikipedia language edition, e.g. "enwiki".
type Edition struct {
	Wiki     string // e.g. "enwiki"
	Language string // first two code points of Wiki, e.g. "en"
	StoreDir string // path to its materialized SQLite store
}

// NewEdition derives Language from the first two runes of wiki and
// records storeRoot as the base directory its materialized store lives
// under.
func NewEdition(wiki, storeRoot string) Edition {
	lang := wiki
	runes := []rune(wiki)
	if len(runes) >= 2 {
		lang = string(runes[:2])
	}
	return Edition{Wiki: wiki, Language: lang, StoreDir: storeRoot}
}

// Catalog resolves complete dump dates for a set of tables against the
// Wikimedia dumps index over HTTP.
type Catalog struct {
	Client  *http.Client
	BaseURL string // e.g. "https://dumps.wikimedia.org"
}

func NewCatalog(client *http.Client, baseURL string) *Catalog {
	if client == nil {
		client = http.DefaultClient
	}
	return &Catalog{Client: client, BaseURL: baseURL}
}

// tableURL returns the canonical dump file URL for one wiki/date/table.
func (c *Catalog) tableURL(wiki, date, table string) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s-%s.sql.gz", c.BaseURL, wiki, date, wiki, date, table)
}

// dateComplete reports whether every table's compressed file responds
// with success at the mirror's canonical URL for (wiki, date).
func (c *Catalog) dateComplete(wiki, date string, tables []string) bool {
	for _, table := range tables {
		url := c.tableURL(wiki, date, table)
		resp, err := c.Client.Head(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return false
		}
	}
	return true
}

// candidateDates lists 8-digit YYYYMMDD candidates walking backward from
// today, bounded to a 12-month horizon. When checkAllDays is false only the
// 1st and 20th of each month are considered, mirroring MediaWiki's dump
// schedule; candidates are returned newest first.
func candidateDates(today time.Time, checkAllDays bool) []string {
	horizon := today.AddDate(-1, 0, 0)
	var dates []string
	if checkAllDays {
		for d := today; !d.Before(horizon); d = d.AddDate(0, 0, -1) {
			dates = append(dates, d.Format("20060102"))
		}
		return dates
	}
	cursor := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.UTC().Location())
	var month20 []time.Time
	for m := cursor; !m.Before(horizon); m = m.AddDate(0, -1, 0) {
		first := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, m.Location())
		twentieth := time.Date(m.Year(), m.Month(), 20, 0, 0, 0, 0, m.Location())
		if !twentieth.After(today) {
			month20 = append(month20, twentieth)
		}
		if !first.After(today) {
			month20 = append(month20, first)
		}
	}
	for _, d := range month20 {
		if !d.Before(horizon) {
			dates = append(dates, d.Format("20060102"))
		}
	}
	return dates
}

// ListCompleteDates returns, for candidates newest-first, the subset for
// which every table in tables is present at wiki's canonical URL.
func (c *Catalog) ListCompleteDates(wiki string, tables []string, checkAllDays bool) []string {
	var complete []string
	for _, date := range candidateDates(time.Now().UTC(), checkAllDays) {
		if c.dateComplete(wiki, date, tables) {
			complete = append(complete, date)
		}
	}
	return complete
}

// IntersectCompleteDates returns dates complete for every wiki in wikis.
func (c *Catalog) IntersectCompleteDates(wikis []string, tables []string, checkAllDays bool) []string {
	if len(wikis) == 0 {
		return nil
	}
	counts := make(map[string]int)
	order := c.ListCompleteDates(wikis[0], tables, checkAllDays)
	for _, d := range order {
		counts[d] = 1
	}
	for _, wiki := range wikis[1:] {
		for _, d := range c.ListCompleteDates(wiki, tables, checkAllDays) {
			if _, seen := counts[d]; seen {
				counts[d]++
			}
		}
	}
	var out []string
	for _, d := range order {
		if counts[d] == len(wikis) {
			out = append(out, d)
		}
	}
	return out
}

// DumpFiles fetches the per-dump index page for (wiki, date) and returns
// its artifact listing with parsed byte sizes, so a caller can log how
// much data a build is about to pull before the first download starts.
func (c *Catalog) DumpFiles(wiki, date string) ([]Artifact, error) {
	url := fmt.Sprintf("%s/%s/%s/", c.BaseURL, wiki, date)
	resp, err := c.Client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dump index %s responded %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return ParseFileList(string(body)), nil
}

// LatestCompleteDate walks backward from today looking for the newest date
// complete for every wiki in wikis. If allowFallback is false, only the
// newest candidate is probed: an incomplete newest candidate yields "", false
// without trying older dates.
func (c *Catalog) LatestCompleteDate(wikis []string, tables []string, allowFallback, checkAllDays bool) (string, bool) {
	dates := candidateDates(time.Now().UTC(), checkAllDays)
	for i, date := range dates {
		complete := true
		for _, wiki := range wikis {
			if !c.dateComplete(wiki, date, tables) {
				complete = false
				break
			}
		}
		if complete {
			return date, true
		}
		if !allowFallback && i == 0 {
			return "", false
		}
	}
	return "", false
}
