// SPDX-License-Identifier: MIT

// Package stats is the statistics aggregator: per-edition metric
// queries composed into a merged report keyed by edition, plus a
// synthetic "global" aggregate. The previous report doubles as a
// zstd-compressed cache so incremental runs only recompute newly listed
// editions.
package stats

import (
	"encoding/json"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/wikigraph/linkgraph/internal/errs"
	"github.com/wikigraph/linkgraph/internal/store"
)

// GlobalKey is the synthetic edition name the merged report uses for
// cross-edition aggregates.
const GlobalKey = "global"

// Extremum pairs a single-page or single-value metric with the edition
// that produced it. No report field uses it: the longest-title fields,
// the global entry's included, hold the plain title without its edition.
type Extremum struct {
	Edition string `json:"edition"`
	Value   string `json:"value"`
}

// EditionReport is one edition's metrics
type EditionReport struct {
	NumPages            int64        `json:"num_pages"`
	NumRedirects        int64        `json:"num_redirects"`
	NumLinks            int64        `json:"num_links"`
	NumLinkedRedirects  int64        `json:"num_linked_redirects"`
	NumDeadPages        int64        `json:"num_dead_pages"`
	NumOrphanPages      int64        `json:"num_orphan_pages"`
	NumDeadOrphanPages  int64        `json:"num_dead_orphan_pages"`
	TopLinked           []Count      `json:"top_linked"`
	TopOutgoing         []Count      `json:"top_outgoing"`
	LongestTitle        string       `json:"longest_title"`
	LongestNonRedirect  string       `json:"longest_non_redirect_title"`
}

// Count is one (title, count) pair in a top-K list; titles rather than
// raw ids since the report is meant for humans and for `diff`-friendly
// JSON.
type Count struct {
	Title string `json:"title"`
	Count int64  `json:"count"`
}

// Report is the full merged statistics document: per-edition entries
// plus the synthetic global aggregate.
type Report struct {
	Editions map[string]EditionReport `json:"editions"`
}

// metricSource is the subset of *store.Store the aggregator queries.
type metricSource interface {
	NumPages() (int64, error)
	NumRedirects() (int64, error)
	NumLinks() (int64, error)
	NumLinkedRedirects() (int64, error)
	NumDeadPages() (int64, error)
	NumOrphanPages() (int64, error)
	NumDeadOrphanPages() (int64, error)
	TopLinked() ([]store.CountEdge, error)
	TopOutgoing() ([]store.CountEdge, error)
	LongestTitle(excludeRedirects bool) (uint32, string, error)
	IDToTitle(id uint32) (string, bool, error)
}

// ComputeEdition runs every per-edition metric query against one store
// and composes them into an EditionReport. Each metric is a single
// aggregate query; any one query's failure is fatal for the whole
// report.
func ComputeEdition(s metricSource) (EditionReport, error) {
	var r EditionReport
	var err error

	if r.NumPages, err = s.NumPages(); err != nil {
		return EditionReport{}, err
	}
	if r.NumRedirects, err = s.NumRedirects(); err != nil {
		return EditionReport{}, err
	}
	if r.NumLinks, err = s.NumLinks(); err != nil {
		return EditionReport{}, err
	}
	if r.NumLinkedRedirects, err = s.NumLinkedRedirects(); err != nil {
		return EditionReport{}, err
	}
	if r.NumDeadPages, err = s.NumDeadPages(); err != nil {
		return EditionReport{}, err
	}
	if r.NumOrphanPages, err = s.NumOrphanPages(); err != nil {
		return EditionReport{}, err
	}
	if r.NumDeadOrphanPages, err = s.NumDeadOrphanPages(); err != nil {
		return EditionReport{}, err
	}

	topLinked, err := s.TopLinked()
	if err != nil {
		return EditionReport{}, err
	}
	r.TopLinked, err = resolveCounts(s, topLinked)
	if err != nil {
		return EditionReport{}, err
	}

	topOut, err := s.TopOutgoing()
	if err != nil {
		return EditionReport{}, err
	}
	r.TopOutgoing, err = resolveCounts(s, topOut)
	if err != nil {
		return EditionReport{}, err
	}

	_, r.LongestTitle, err = s.LongestTitle(false)
	if err != nil {
		return EditionReport{}, err
	}
	_, r.LongestNonRedirect, err = s.LongestTitle(true)
	if err != nil {
		return EditionReport{}, err
	}

	return r, nil
}

func resolveCounts(s metricSource, edges []store.CountEdge) ([]Count, error) {
	out := make([]Count, 0, len(edges))
	for _, e := range edges {
		title, ok, err := s.IDToTitle(e.PageID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, Count{Title: title, Count: e.Count})
	}
	return out, nil
}

// Merge inserts (or replaces) edition's entry in the report and
// recomputes the global aggregate from the full merged set: counts sum,
// top-K lists concatenate and re-sort, single-page metrics take the
// argmax.
func (r *Report) Merge(edition string, er EditionReport) {
	if r.Editions == nil {
		r.Editions = make(map[string]EditionReport)
	}
	r.Editions[edition] = er
	r.Editions[GlobalKey] = r.computeGlobal()
}

func (r *Report) computeGlobal() EditionReport {
	var g EditionReport
	var allTopLinked, allTopOutgoing []Count
	var longest, longestNonRedirect string

	for name, er := range r.Editions {
		if name == GlobalKey {
			continue
		}
		g.NumPages += er.NumPages
		g.NumRedirects += er.NumRedirects
		g.NumLinks += er.NumLinks
		g.NumLinkedRedirects += er.NumLinkedRedirects
		g.NumDeadPages += er.NumDeadPages
		g.NumOrphanPages += er.NumOrphanPages
		g.NumDeadOrphanPages += er.NumDeadOrphanPages
		allTopLinked = append(allTopLinked, er.TopLinked...)
		allTopOutgoing = append(allTopOutgoing, er.TopOutgoing...)
		if len(er.LongestTitle) > len(longest) {
			longest = er.LongestTitle
		}
		if len(er.LongestNonRedirect) > len(longestNonRedirect) {
			longestNonRedirect = er.LongestNonRedirect
		}
	}

	g.TopLinked = sortAndTrim(allTopLinked, 10)
	g.TopOutgoing = sortAndTrim(allTopOutgoing, 10)
	g.LongestTitle = longest
	g.LongestNonRedirect = longestNonRedirect
	return g
}

func sortAndTrim(counts []Count, limit int) []Count {
	out := append([]Count{}, counts...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Count > out[j-1].Count; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Load reads a previously written report from path, decompressing it
// with zstd, for incremental-mode merges. Returns a zero-value Report
// and no error if the file does not exist.
func Load(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Report{}, nil
		}
		return Report{}, errs.New(errs.Config, "stats.Load", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return Report{}, errs.New(errs.Config, "stats.Load", err)
	}
	defer decoder.Close()
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return Report{}, errs.New(errs.Schema, "stats.Load", err)
	}
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return Report{}, errs.New(errs.Schema, "stats.Load", err)
	}
	return r, nil
}

// Save writes r to path as zstd-compressed JSON, the compact form used
// for the incremental cache.
func Save(r Report, path string) error {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return errs.New(errs.Config, "stats.Save", err)
	}
	defer encoder.Close()
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errs.New(errs.Config, "stats.Save", err)
	}
	compressed := encoder.EncodeAll(raw, nil)
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return errs.New(errs.Config, "stats.Save", err)
	}
	return nil
}

// SaveHumanReadable writes r as plain (uncompressed) JSON to path, the
// operator-facing report, distinct from the zstd-compressed incremental
// cache Save/Load use internally.
func SaveHumanReadable(r Report, path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errs.New(errs.Config, "stats.SaveHumanReadable", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errs.New(errs.Config, "stats.SaveHumanReadable", err)
	}
	return nil
}

// NeedsRecompute reports whether edition is absent from an incrementally
// loaded report, the check that drives the "only newly listed
// editions are recomputed."
func (r Report) NeedsRecompute(edition string) bool {
	if r.Editions == nil {
		return true
	}
	_, ok := r.Editions[edition]
	return !ok
}
