// SPDX-License-Identifier: MIT

package store

import (
	"database/sql"
	"errors"

	"github.com/wikigraph/linkgraph/internal/errs"
)

// CountEdge is one row of a top-K degree query: a page id paired with its
// in- or out-degree.
type CountEdge struct {
	PageID uint32
	Count  int64
}

// NumPages returns the number of namespace-0 pages in the store.
func (s *Store) NumPages() (int64, error) {
	return s.scalar(`SELECT COUNT(*) FROM Page`)
}

// NumRedirects returns the number of namespace-0 pages flagged as
// redirects.
func (s *Store) NumRedirects() (int64, error) {
	return s.scalar(`SELECT COUNT(*) FROM Page WHERE is_redirect = 1`)
}

// NumLinks returns the number of distinct (from_id, to_id) edges.
func (s *Store) NumLinks() (int64, error) {
	return s.scalar(`SELECT COUNT(*) FROM WikiLink`)
}

// NumLinkedRedirects returns the number of redirect pages that are
// themselves the target of at least one link.
func (s *Store) NumLinkedRedirects() (int64, error) {
	return s.scalar(`
		SELECT COUNT(*) FROM Page
		WHERE is_redirect = 1
		AND page_id IN (SELECT DISTINCT to_id FROM WikiLink)
	`)
}

// NumDeadPages returns the count of page ids absent from the from_id
// column: the "dead page" metric.
func (s *Store) NumDeadPages() (int64, error) {
	return s.scalar(`
		SELECT COUNT(*) FROM Page
		WHERE page_id NOT IN (SELECT DISTINCT from_id FROM WikiLink)
	`)
}

// NumOrphanPages returns the count of page ids absent from the to_id
// column: the "orphan page" metric.
func (s *Store) NumOrphanPages() (int64, error) {
	return s.scalar(`
		SELECT COUNT(*) FROM Page
		WHERE page_id NOT IN (SELECT DISTINCT to_id FROM WikiLink)
	`)
}

// NumDeadOrphanPages returns the count of page ids that are both dead and
// orphaned: no outgoing and no incoming links at all.
func (s *Store) NumDeadOrphanPages() (int64, error) {
	return s.scalar(`
		SELECT COUNT(*) FROM Page
		WHERE page_id NOT IN (SELECT DISTINCT from_id FROM WikiLink)
		AND page_id NOT IN (SELECT DISTINCT to_id FROM WikiLink)
	`)
}

func (s *Store) scalar(query string) (int64, error) {
	var n int64
	if err := s.db.QueryRow(query).Scan(&n); err != nil {
		return 0, errs.New(errs.Config, "store.scalar", err)
	}
	return n, nil
}

// TopLinked returns the top-10 most-linked pages by in-degree: group by
// to_id, order by count desc, limit 10.
func (s *Store) TopLinked() ([]CountEdge, error) {
	return s.topK(`
		SELECT to_id, COUNT(*) AS c FROM WikiLink
		GROUP BY to_id ORDER BY c DESC LIMIT 10
	`)
}

// TopOutgoing returns the top-10 pages by out-degree: group by from_id,
// order by count desc, limit 10.
func (s *Store) TopOutgoing() ([]CountEdge, error) {
	return s.topK(`
		SELECT from_id, COUNT(*) AS c FROM WikiLink
		GROUP BY from_id ORDER BY c DESC LIMIT 10
	`)
}

func (s *Store) topK(query string) ([]CountEdge, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errs.New(errs.Config, "store.topK", err)
	}
	defer rows.Close()
	var out []CountEdge
	for rows.Next() {
		var ce CountEdge
		if err := rows.Scan(&ce.PageID, &ce.Count); err != nil {
			return nil, errs.New(errs.Config, "store.topK", err)
		}
		out = append(out, ce)
	}
	return out, rows.Err()
}

// LongestTitle returns the page id and title of the longest article
// title, optionally filtered to non-redirects.
func (s *Store) LongestTitle(excludeRedirects bool) (pageID uint32, title string, err error) {
	query := `SELECT page_id, page_title FROM Page`
	if excludeRedirects {
		query += ` WHERE is_redirect = 0`
	}
	query += ` ORDER BY LENGTH(page_title) DESC LIMIT 1`
	row := s.db.QueryRow(query)
	if scanErr := row.Scan(&pageID, &title); scanErr != nil {
		return 0, "", errs.New(errs.Config, "store.LongestTitle", scanErr)
	}
	return pageID, title, nil
}

// TitleToID resolves a (normalized) title to its page id, for the
// shortest-path service and validator.
func (s *Store) TitleToID(title string) (uint32, bool, error) {
	var id uint32
	err := s.db.QueryRow(`SELECT page_id FROM Page WHERE page_title = ?`, title).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errs.New(errs.Config, "store.TitleToID", err)
	}
	return id, true, nil
}

// IDToTitle resolves a page id to its title.
func (s *Store) IDToTitle(id uint32) (string, bool, error) {
	var title string
	err := s.db.QueryRow(`SELECT page_title FROM Page WHERE page_id = ?`, id).Scan(&title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errs.New(errs.Config, "store.IDToTitle", err)
	}
	return title, true, nil
}

// IsRedirect reports whether id is flagged as a redirect page.
func (s *Store) IsRedirect(id uint32) (bool, error) {
	var flag int
	err := s.db.QueryRow(`SELECT is_redirect FROM Page WHERE page_id = ?`, id).Scan(&flag)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, errs.New(errs.Config, "store.IsRedirect", err)
	}
	return flag != 0, nil
}

// ResolveRedirectChain follows id through redirect pages until it lands
// on a non-redirect, returning the terminal page id. Redirect cycles
// (they exist upstream) break at the first revisited vertex; a redirect
// with no outgoing link resolves to itself.
func (s *Store) ResolveRedirectChain(id uint32) (uint32, error) {
	seen := map[uint32]bool{id: true}
	for {
		redirect, err := s.IsRedirect(id)
		if err != nil {
			return 0, err
		}
		if !redirect {
			return id, nil
		}
		targets, err := s.Outgoing(id)
		if err != nil {
			return 0, err
		}
		if len(targets) == 0 || seen[targets[0]] {
			return id, nil
		}
		id = targets[0]
		seen[id] = true
	}
}

// Outgoing returns the neighbor ids that id links to.
func (s *Store) Outgoing(id uint32) ([]uint32, error) {
	return s.neighbors(`SELECT to_id FROM WikiLink WHERE from_id = ?`, id)
}

// Incoming returns the neighbor ids that link to id.
func (s *Store) Incoming(id uint32) ([]uint32, error) {
	return s.neighbors(`SELECT from_id FROM WikiLink WHERE to_id = ?`, id)
}

func (s *Store) neighbors(query string, id uint32) ([]uint32, error) {
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, errs.New(errs.Config, "store.neighbors", err)
	}
	defer rows.Close()
	var out []uint32
	for rows.Next() {
		var n uint32
		if err := rows.Scan(&n); err != nil {
			return nil, errs.New(errs.Config, "store.neighbors", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AllPageIDs returns every namespace-0 page id, used by the sample
// harness to draw random start vertices and by the WCC sweep.
func (s *Store) AllPageIDs() ([]uint32, error) {
	rows, err := s.db.Query(`SELECT page_id FROM Page`)
	if err != nil {
		return nil, errs.New(errs.Config, "store.AllPageIDs", err)
	}
	defer rows.Close()
	var out []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, errs.New(errs.Config, "store.AllPageIDs", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// TopDegreeIDs returns the k page ids with the highest degree in the
// given direction, used by the link cache's partial-top-K preload mode.
func (s *Store) TopDegreeIDs(direction string, k int) ([]uint32, error) {
	column := "from_id"
	if direction == "incoming" {
		column = "to_id"
	}
	rows, err := s.db.Query(
		`SELECT `+column+` FROM WikiLink GROUP BY `+column+` ORDER BY COUNT(*) DESC LIMIT ?`, k,
	)
	if err != nil {
		return nil, errs.New(errs.Config, "store.TopDegreeIDs", err)
	}
	defer rows.Close()
	var out []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, errs.New(errs.Config, "store.TopDegreeIDs", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

