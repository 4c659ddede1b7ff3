// SPDX-License-Identifier: MIT

package stats

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/wikigraph/linkgraph/internal/store"
)

// fakeMetrics serves canned metric values without touching SQLite.
type fakeMetrics struct {
	pages, redirects, links int64
	topLinked               []store.CountEdge
	topOutgoing             []store.CountEdge
	titles                  map[uint32]string
	longest                 string
	failNumLinks            bool
}

func (f *fakeMetrics) NumPages() (int64, error)     { return f.pages, nil }
func (f *fakeMetrics) NumRedirects() (int64, error) { return f.redirects, nil }
func (f *fakeMetrics) NumLinks() (int64, error) {
	if f.failNumLinks {
		return 0, errors.New("query failed")
	}
	return f.links, nil
}
func (f *fakeMetrics) NumLinkedRedirects() (int64, error) { return 0, nil }
func (f *fakeMetrics) NumDeadPages() (int64, error)       { return 1, nil }
func (f *fakeMetrics) NumOrphanPages() (int64, error)     { return 1, nil }
func (f *fakeMetrics) NumDeadOrphanPages() (int64, error) { return 0, nil }
func (f *fakeMetrics) TopLinked() ([]store.CountEdge, error) {
	return f.topLinked, nil
}
func (f *fakeMetrics) TopOutgoing() ([]store.CountEdge, error) {
	return f.topOutgoing, nil
}
func (f *fakeMetrics) LongestTitle(excludeRedirects bool) (uint32, string, error) {
	return 1, f.longest, nil
}
func (f *fakeMetrics) IDToTitle(id uint32) (string, bool, error) {
	t, ok := f.titles[id]
	return t, ok, nil
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		pages: 4, redirects: 1, links: 4,
		topLinked:   []store.CountEdge{{PageID: 3, Count: 2}, {PageID: 2, Count: 1}},
		topOutgoing: []store.CountEdge{{PageID: 1, Count: 2}},
		titles:      map[uint32]string{1: "One", 2: "Two", 3: "Three"},
		longest:     "Three",
	}
}

func TestComputeEdition(t *testing.T) {
	er, err := ComputeEdition(newFakeMetrics())
	if err != nil {
		t.Fatal(err)
	}
	if er.NumPages != 4 || er.NumLinks != 4 || er.NumRedirects != 1 {
		t.Errorf("counts = %+v", er)
	}
	wantTop := []Count{{Title: "Three", Count: 2}, {Title: "Two", Count: 1}}
	if !reflect.DeepEqual(er.TopLinked, wantTop) {
		t.Errorf("TopLinked = %v, want %v", er.TopLinked, wantTop)
	}
	if er.LongestTitle != "Three" {
		t.Errorf("LongestTitle = %q, want Three", er.LongestTitle)
	}
}

func TestComputeEditionAllOrNothing(t *testing.T) {
	f := newFakeMetrics()
	f.failNumLinks = true
	if _, err := ComputeEdition(f); err == nil {
		t.Error("metric failure did not fail the report")
	}
}

func TestMergeGlobalAggregation(t *testing.T) {
	var r Report
	r.Merge("enwiki", EditionReport{
		NumPages: 10, NumLinks: 100,
		TopLinked:    []Count{{Title: "Alpha", Count: 50}, {Title: "Beta", Count: 10}},
		LongestTitle: "A_reasonably_long_title",
	})
	r.Merge("dewiki", EditionReport{
		NumPages: 4, NumLinks: 40,
		TopLinked:    []Count{{Title: "Gamma", Count: 30}},
		LongestTitle: "Short",
	})

	g := r.Editions[GlobalKey]
	if g.NumPages != 14 || g.NumLinks != 140 {
		t.Errorf("global counts = %+v, want sums 14/140", g)
	}
	wantTop := []Count{{Title: "Alpha", Count: 50}, {Title: "Gamma", Count: 30}, {Title: "Beta", Count: 10}}
	if !reflect.DeepEqual(g.TopLinked, wantTop) {
		t.Errorf("global TopLinked = %v, want %v", g.TopLinked, wantTop)
	}
	if g.LongestTitle != "A_reasonably_long_title" {
		t.Errorf("global LongestTitle = %q", g.LongestTitle)
	}
}

func TestMergeIsIncremental(t *testing.T) {
	// Merging editions one at a time must equal merging them at once.
	var oneByOne, atOnce Report
	a := EditionReport{NumPages: 3, TopLinked: []Count{{Title: "X", Count: 5}}}
	b := EditionReport{NumPages: 7, TopLinked: []Count{{Title: "Y", Count: 9}}}

	oneByOne.Merge("aawiki", a)
	oneByOne.Merge("bbwiki", b)
	atOnce.Merge("bbwiki", b)
	atOnce.Merge("aawiki", a)

	if !reflect.DeepEqual(oneByOne.Editions[GlobalKey], atOnce.Editions[GlobalKey]) {
		t.Errorf("merge order changed the global aggregate:\n%+v\n%+v",
			oneByOne.Editions[GlobalKey], atOnce.Editions[GlobalKey])
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.zst")
	var r Report
	r.Merge("enwiki", EditionReport{NumPages: 42, LongestTitle: "Zürich"})

	if err := Save(r, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded, r) {
		t.Errorf("round trip changed the report:\n%+v\n%+v", loaded, r)
	}
}

func TestLoadMissingFile(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "absent.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Editions != nil {
		t.Errorf("missing file yielded non-empty report: %+v", r)
	}
}

func TestNeedsRecompute(t *testing.T) {
	var r Report
	if !r.NeedsRecompute("enwiki") {
		t.Error("empty report should need recompute")
	}
	r.Merge("enwiki", EditionReport{})
	if r.NeedsRecompute("enwiki") {
		t.Error("present edition should not need recompute")
	}
	if !r.NeedsRecompute("dewiki") {
		t.Error("absent edition should need recompute")
	}
}

func TestSaveHumanReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	var r Report
	r.Merge("enwiki", EditionReport{NumPages: 1})
	if err := SaveHumanReadable(r, path); err != nil {
		t.Fatal(err)
	}
	// The plain file must not load through the zstd path.
	if _, err := Load(path); err == nil {
		t.Error("plain JSON loaded through the compressed path")
	}
}
