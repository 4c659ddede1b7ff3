// SPDX-License-Identifier: MIT

// Package wikiapi is a thin client for the upstream MediaWiki Action
// API, used by the validator to fetch live link neighborhoods, revision
// history, diffs, and rendered links, and by the shortest-path service
// for the pageview metrics ranking. Requests are context-bound, share
// one *http.Client, and always carry an explicit User-Agent.
package wikiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/wikigraph/linkgraph/internal/errs"
)

// UserAgentEnvVar names the environment variable holding the mandatory
// User-Agent string identifying the operator to Wikimedia.
const UserAgentEnvVar = "WIKIPEDIA_REST_API_USER_AGENT"

// Client calls the Action API of one Wikipedia language edition.
type Client struct {
	HTTPClient *http.Client
	Prefix     string // e.g. "en" for https://en.wikipedia.org
	UserAgent  string

	// APIBase and MetricsBase override the production endpoints,
	// primarily so tests can point the client at a local server. Empty
	// means https://<prefix>.wikipedia.org/w/api.php and
	// https://wikimedia.org/api/rest_v1 respectively.
	APIBase     string
	MetricsBase string
}

// NewClient builds a Client for prefix, reading the mandatory
// User-Agent from the environment. Returns a Config error if the
// variable is unset; a missing environment variable must fail before
// any scheduling starts.
func NewClient(httpClient *http.Client, prefix string) (*Client, error) {
	ua := os.Getenv(UserAgentEnvVar)
	if ua == "" {
		return nil, errs.New(errs.Config, "wikiapi.NewClient", fmt.Errorf("%s is not set", UserAgentEnvVar))
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTPClient: httpClient, Prefix: prefix, UserAgent: ua}, nil
}

func (c *Client) baseURL() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	return fmt.Sprintf("https://%s.wikipedia.org/w/api.php", c.Prefix)
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	reqURL := c.baseURL() + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errs.New(errs.Config, "wikiapi.get", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errs.New(errs.Transient, "wikiapi.get", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errs.New(errs.Transient, "wikiapi.get", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.Schema, "wikiapi.get", fmt.Errorf("status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.New(errs.Schema, "wikiapi.get", err)
	}
	return nil
}

// linksResponse is the shape of prop=links / prop=linkshere responses,
// including their `plcontinue`/`lhcontinue` pagination tokens.
type linksResponse struct {
	Continue struct {
		PLContinue string `json:"plcontinue"`
		LHContinue string `json:"lhcontinue"`
	} `json:"continue"`
	Query struct {
		Pages []struct {
			Links     []struct{ Title string } `json:"links"`
			LinksHere []struct{ Title string } `json:"linkshere"`
		} `json:"pages"`
	} `json:"query"`
}

// OutgoingLinks returns title's outgoing namespace-0 links, paginating
// through plcontinue until exhausted.
func (c *Client) OutgoingLinks(ctx context.Context, title string) ([]string, error) {
	var out []string
	cont := ""
	for {
		params := url.Values{
			"action":  {"query"},
			"prop":    {"links"},
			"titles":  {title},
			"plnamespace": {"0"},
			"pllimit": {"max"},
		}
		if cont != "" {
			params.Set("plcontinue", cont)
		}
		var resp linksResponse
		if err := c.get(ctx, params, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Query.Pages {
			for _, l := range p.Links {
				out = append(out, l.Title)
			}
		}
		if resp.Continue.PLContinue == "" {
			break
		}
		cont = resp.Continue.PLContinue
	}
	return out, nil
}

// IncomingLinks returns the namespace-0 pages that link to title (the
// `linkshere` property), paginating through lhcontinue.
func (c *Client) IncomingLinks(ctx context.Context, title string) ([]string, error) {
	var out []string
	cont := ""
	for {
		params := url.Values{
			"action":      {"query"},
			"prop":        {"linkshere"},
			"titles":      {title},
			"lhnamespace": {"0"},
			"lhlimit":     {"max"},
		}
		if cont != "" {
			params.Set("lhcontinue", cont)
		}
		var resp linksResponse
		if err := c.get(ctx, params, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Query.Pages {
			for _, l := range p.LinksHere {
				out = append(out, l.Title)
			}
		}
		if resp.Continue.LHContinue == "" {
			break
		}
		cont = resp.Continue.LHContinue
	}
	return out, nil
}

// PageInfo is the subset of prop=info the validator needs. A page's
// creation time is not part of prop=info; use FirstRevision for that.
type PageInfo struct {
	PageID  int64
	Missing bool
	Touched string
}

// Info fetches prop=info for title.
func (c *Client) Info(ctx context.Context, title string) (PageInfo, error) {
	params := url.Values{
		"action": {"query"},
		"prop":   {"info"},
		"titles": {title},
	}
	var resp struct {
		Query struct {
			Pages []struct {
				PageID  int64  `json:"pageid"`
				Missing bool   `json:"missing"`
				Touched string `json:"touched"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return PageInfo{}, err
	}
	if len(resp.Query.Pages) == 0 {
		return PageInfo{Missing: true}, nil
	}
	p := resp.Query.Pages[0]
	return PageInfo{PageID: p.PageID, Missing: p.Missing, Touched: p.Touched}, nil
}

// Revision is one entry of a prop=revisions query: a timestamp and
// revision id, used to locate the revision current at a given moment.
type Revision struct {
	RevID     int64
	Timestamp string
}

// RevisionAt returns the most recent revision of title at or before
// timestamp (RFC3339), used to locate the revision that was current at
// dump completion time.
func (c *Client) RevisionAt(ctx context.Context, title, timestamp string) (Revision, bool, error) {
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"titles":  {title},
		"rvprop":  {"ids|timestamp"},
		"rvlimit": {"1"},
		"rvstart": {timestamp},
		"rvdir":   {"older"},
	}
	var resp struct {
		Query struct {
			Pages []struct {
				Revisions []struct {
					RevID     int64  `json:"revid"`
					Timestamp string `json:"timestamp"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return Revision{}, false, err
	}
	if len(resp.Query.Pages) == 0 || len(resp.Query.Pages[0].Revisions) == 0 {
		return Revision{}, false, nil
	}
	r := resp.Query.Pages[0].Revisions[0]
	return Revision{RevID: r.RevID, Timestamp: r.Timestamp}, true, nil
}

// FirstRevision returns title's oldest revision (rvdir=newer, rvlimit=1),
// which dates the page's creation.
func (c *Client) FirstRevision(ctx context.Context, title string) (Revision, bool, error) {
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"titles":  {title},
		"rvprop":  {"ids|timestamp"},
		"rvlimit": {"1"},
		"rvdir":   {"newer"},
	}
	var resp struct {
		Query struct {
			Pages []struct {
				Revisions []struct {
					RevID     int64  `json:"revid"`
					Timestamp string `json:"timestamp"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return Revision{}, false, err
	}
	if len(resp.Query.Pages) == 0 || len(resp.Query.Pages[0].Revisions) == 0 {
		return Revision{}, false, nil
	}
	r := resp.Query.Pages[0].Revisions[0]
	return Revision{RevID: r.RevID, Timestamp: r.Timestamp}, true, nil
}

// CompareDiff runs action=compare between two revisions and returns the
// raw diff HTML, which the validator scans for an added or removed link
// title. A toRev of 0 compares against the current revision.
func (c *Client) CompareDiff(ctx context.Context, fromRev, toRev int64) (string, error) {
	params := url.Values{
		"action":  {"compare"},
		"fromrev": {strconv.FormatInt(fromRev, 10)},
	}
	if toRev == 0 {
		params.Set("torelative", "cur")
	} else {
		params.Set("torev", strconv.FormatInt(toRev, 10))
	}
	var resp struct {
		Compare struct {
			Body string `json:"body"`
		} `json:"compare"`
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return "", err
	}
	return resp.Compare.Body, nil
}

// RenderedLinks returns the page-internal links (namespace-0 titles)
// MediaWiki extracted when rendering revision rev, used to catch
// template-generated links that a content diff never exposes.
func (c *Client) RenderedLinks(ctx context.Context, rev int64) ([]string, error) {
	params := url.Values{
		"action":  {"parse"},
		"oldid":   {strconv.FormatInt(rev, 10)},
		"prop":    {"links"},
	}
	var resp struct {
		Parse struct {
			Links []struct {
				Title string `json:"title"`
				NS    int    `json:"ns"`
			} `json:"links"`
		} `json:"parse"`
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	var out []string
	for _, l := range resp.Parse.Links {
		if l.NS == 0 {
			out = append(out, l.Title)
		}
	}
	return out, nil
}

// RandomArticles draws n random namespace-0 article titles, used to
// sample articles for validation
func (c *Client) RandomArticles(ctx context.Context, n int) ([]string, error) {
	params := url.Values{
		"action":      {"query"},
		"list":        {"random"},
		"rnnamespace": {"0"},
		"rnlimit":     {strconv.Itoa(n)},
	}
	var resp struct {
		Query struct {
			Random []struct {
				Title string `json:"title"`
			} `json:"random"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	var out []string
	for _, r := range resp.Query.Random {
		out = append(out, r.Title)
	}
	return out, nil
}
