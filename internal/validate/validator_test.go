// SPDX-License-Identifier: MIT

package validate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/wikigraph/linkgraph/internal/wikiapi"
)

// fakeGraph is the persisted side of the reconciliation: titles, ids,
// and both neighborhoods.
type fakeGraph struct {
	ids map[string]uint32
	out map[uint32][]uint32
	in  map[uint32][]uint32
}

func (f *fakeGraph) TitleToID(title string) (uint32, bool, error) {
	id, ok := f.ids[title]
	return id, ok, nil
}

func (f *fakeGraph) IDToTitle(id uint32) (string, bool, error) {
	for t, i := range f.ids {
		if i == id {
			return t, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeGraph) Outgoing(id uint32) ([]uint32, error) { return f.out[id], nil }
func (f *fakeGraph) Incoming(id uint32) ([]uint32, error) { return f.in[id], nil }

// upstream is a scripted Action API: per-title outgoing/incoming link
// sets, a diff body per title, rendered links per title, and first
// revision timestamps.
type upstream struct {
	out      map[string][]string
	in       map[string][]string
	diff     map[string]string
	rendered map[string][]string
	created  map[string]string
}

func (u *upstream) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		title := q.Get("titles")
		switch {
		case q.Get("action") == "query" && q.Get("prop") == "links":
			var links string
			for i, l := range u.out[title] {
				if i > 0 {
					links += ","
				}
				links += fmt.Sprintf(`{"title":%q}`, l)
			}
			fmt.Fprintf(w, `{"query":{"pages":[{"links":[%s]}]}}`, links)
		case q.Get("prop") == "linkshere":
			var links string
			for i, l := range u.in[title] {
				if i > 0 {
					links += ","
				}
				links += fmt.Sprintf(`{"title":%q}`, l)
			}
			fmt.Fprintf(w, `{"query":{"pages":[{"linkshere":[%s]}]}}`, links)
		case q.Get("prop") == "revisions" && q.Get("rvdir") == "older":
			// Dump-era revision id: a stable hash of the title keeps
			// distinct pages on distinct revisions.
			fmt.Fprintf(w, `{"query":{"pages":[{"revisions":[{"revid":%d,"timestamp":"2024-08-31T00:00:00Z"}]}]}}`, revID(title))
		case q.Get("prop") == "revisions" && q.Get("rvdir") == "newer":
			created := u.created[title]
			if created == "" {
				created = "2015-01-01T00:00:00Z"
			}
			fmt.Fprintf(w, `{"query":{"pages":[{"revisions":[{"revid":1,"timestamp":%q}]}]}}`, created)
		case q.Get("action") == "compare":
			// fromrev identifies the page under diff.
			for title := range u.diff {
				if q.Get("fromrev") == fmt.Sprint(revID(title)) {
					fmt.Fprintf(w, `{"compare":{"body":%q}}`, u.diff[title])
					return
				}
			}
			fmt.Fprint(w, `{"compare":{"body":""}}`)
		case q.Get("action") == "parse":
			for title, links := range u.rendered {
				if q.Get("oldid") == fmt.Sprint(revID(title)) {
					var out string
					for i, l := range links {
						if i > 0 {
							out += ","
						}
						out += fmt.Sprintf(`{"title":%q,"ns":0}`, l)
					}
					fmt.Fprintf(w, `{"parse":{"links":[%s]}}`, out)
					return
				}
			}
			fmt.Fprint(w, `{"parse":{"links":[]}}`)
		case q.Get("prop") == "info":
			fmt.Fprint(w, `{"query":{"pages":[{"pageid":1}]}}`)
		default:
			t.Errorf("unexpected request: %s", r.URL)
			fmt.Fprint(w, `{}`)
		}
	})
}

func revID(title string) int {
	h := 0
	for _, c := range title {
		h = h*31 + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h%100000 + 1000
}

func newTestValidator(t *testing.T, g *fakeGraph, u *upstream) *Validator {
	t.Helper()
	t.Setenv(wikiapi.UserAgentEnvVar, "linkgraph-test/1.0")
	srv := httptest.NewServer(u.handler(t))
	t.Cleanup(srv.Close)
	api, err := wikiapi.NewClient(srv.Client(), "pw")
	if err != nil {
		t.Fatal(err)
	}
	api.APIBase = srv.URL + "/w/api.php"
	dumpTime := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	return NewValidator(api, g, "pw", dumpTime)
}

func happyGraph() *fakeGraph {
	return &fakeGraph{
		ids: map[string]uint32{"One": 1, "Two": 2, "Three": 3},
		out: map[uint32][]uint32{1: {2, 3}},
		in:  map[uint32][]uint32{1: nil},
	}
}

func happyUpstream() *upstream {
	return &upstream{
		out:      map[string][]string{"One": {"Two", "Three"}},
		in:       map[string][]string{},
		diff:     map[string]string{},
		rendered: map[string][]string{},
		created:  map[string]string{},
	}
}

func TestValidateHappyPath(t *testing.T) {
	v := newTestValidator(t, happyGraph(), happyUpstream())
	result, err := v.ValidateArticles(context.Background(), []string{"One"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || len(result.Flags) != 0 {
		t.Errorf("got %+v, want success with no flags", result)
	}
	if result.NumValidated != 1 {
		t.Errorf("NumValidated = %d, want 1", result.NumValidated)
	}
}

func TestValidateToleratesDeletionDrift(t *testing.T) {
	// The store has One -> Three but upstream no longer does; the diff
	// since the dump advertises the removal, so it is recency drift.
	g := happyGraph()
	u := happyUpstream()
	u.out["One"] = []string{"Two"}
	u.diff["One"] = `<td class="diff-deletedline">[[Three]]</td>`

	v := newTestValidator(t, g, u)
	result, err := v.ValidateArticles(context.Background(), []string{"One"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Errorf("deletion drift flagged as defect: %+v", result.Flags)
	}
}

func TestValidateToleratesLateAddition(t *testing.T) {
	// Upstream has One -> Two, Three, Four; the store lacks Four. The
	// diff names Four as added content after the dump.
	g := happyGraph()
	u := happyUpstream()
	u.out["One"] = []string{"Two", "Three", "Four"}
	u.diff["One"] = `<td class="diff-addedline">[[Four]]</td>`

	v := newTestValidator(t, g, u)
	result, err := v.ValidateArticles(context.Background(), []string{"One"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Errorf("late addition flagged as defect: %+v", result.Flags)
	}
}

func TestValidateFlagsMissingDumpEraLink(t *testing.T) {
	// Upstream has One -> Four, the store does not, the diff is silent,
	// and the dump-era rendered page DID carry the link: the builder
	// dropped a real edge.
	g := happyGraph()
	u := happyUpstream()
	u.out["One"] = []string{"Two", "Three", "Four"}
	u.rendered["One"] = []string{"Two", "Three", "Four"}

	v := newTestValidator(t, g, u)
	result, err := v.ValidateArticles(context.Background(), []string{"One"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("genuine defect not flagged")
	}
	want := Flag{From: "One", To: "Four", Direction: "missing-from-db"}
	if !slices.Contains(result.Flags, want) {
		t.Errorf("flags = %+v, want %+v among them", result.Flags, want)
	}
}

func TestValidateToleratesTemplateLinkAbsence(t *testing.T) {
	// Upstream has One -> Four but the dump-era render never contained
	// it: the link appeared after the snapshot through whatever path,
	// so it is tolerated.
	g := happyGraph()
	u := happyUpstream()
	u.out["One"] = []string{"Two", "Three", "Four"}
	u.rendered["One"] = []string{"Two", "Three"}

	v := newTestValidator(t, g, u)
	result, err := v.ValidateArticles(context.Background(), []string{"One"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Errorf("post-dump link flagged as defect: %+v", result.Flags)
	}
}

func TestValidateToleratesPageCreatedAfterDump(t *testing.T) {
	// Upstream reports an incoming link from New_Page, which was created
	// after the dump date; the store cannot know it.
	g := happyGraph()
	u := happyUpstream()
	u.in["One"] = []string{"New_Page"}
	u.created["New_Page"] = "2024-09-15T00:00:00Z"

	v := newTestValidator(t, g, u)
	result, err := v.ValidateArticles(context.Background(), []string{"One"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Errorf("post-dump page creation flagged as defect: %+v", result.Flags)
	}
}

func TestValidateRawDumpFallback(t *testing.T) {
	// An outdated-in-db edge with no supporting diff and no dump-era
	// render normally flags; if the raw dump itself carries it, the
	// builder is not at fault and the run succeeds.
	g := happyGraph()
	u := happyUpstream()
	u.out["One"] = []string{"Two"}
	u.rendered["One"] = []string{"Two"}

	inRawDump := func(from, to string) (bool, error) { return true, nil }
	v := newTestValidator(t, g, u)
	result, err := v.ValidateArticles(context.Background(), []string{"One"}, inRawDump)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Errorf("raw-dump-backed flag not dropped: %+v", result.Flags)
	}

	notInRawDump := func(from, to string) (bool, error) { return false, nil }
	v = newTestValidator(t, g, u)
	result, err = v.ValidateArticles(context.Background(), []string{"One"}, notInRawDump)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success || len(result.Flags) != 1 {
		t.Errorf("got %+v, want one residual flag", result)
	}
}

func TestSymmetricDifference(t *testing.T) {
	diffs := symmetricDifference([]string{"A", "B", "C"}, []string{"B", "C", "D"})
	var missing, outdated []string
	for _, d := range diffs {
		if d.upstreamHas {
			missing = append(missing, d.value)
		} else {
			outdated = append(outdated, d.value)
		}
	}
	if !slices.Equal(missing, []string{"A"}) {
		t.Errorf("missing = %v, want [A]", missing)
	}
	if !slices.Equal(outdated, []string{"D"}) {
		t.Errorf("outdated = %v, want [D]", outdated)
	}
}
