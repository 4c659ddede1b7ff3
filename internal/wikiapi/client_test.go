// SPDX-License-Identifier: MIT

package wikiapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/wikigraph/linkgraph/internal/errs"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	t.Setenv(UserAgentEnvVar, "linkgraph-test/1.0 (test@example.org)")
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.Client(), "pw")
	if err != nil {
		t.Fatal(err)
	}
	c.APIBase = srv.URL + "/w/api.php"
	c.MetricsBase = srv.URL + "/api/rest_v1"
	return c
}

func TestNewClientRequiresUserAgent(t *testing.T) {
	t.Setenv(UserAgentEnvVar, "")
	_, err := NewClient(nil, "en")
	if !errs.Is(err, errs.Config) {
		t.Errorf("got %v, want Config", err)
	}
}

func TestOutgoingLinksPagination(t *testing.T) {
	var sawUserAgent bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "" {
			sawUserAgent = true
		}
		if r.URL.Query().Get("plcontinue") == "" {
			fmt.Fprint(w, `{"continue":{"plcontinue":"123|0|Next"},"query":{"pages":[{"links":[{"title":"Alpha"},{"title":"Beta"}]}]}}`)
			return
		}
		fmt.Fprint(w, `{"query":{"pages":[{"links":[{"title":"Gamma"}]}]}}`)
	}))

	links, err := c.OutgoingLinks(context.Background(), "Main_Page")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(links, []string{"Alpha", "Beta", "Gamma"}) {
		t.Errorf("got %v", links)
	}
	if !sawUserAgent {
		t.Error("requests carried no User-Agent header")
	}
}

func TestIncomingLinks(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("prop") != "linkshere" {
			t.Errorf("prop = %q, want linkshere", r.URL.Query().Get("prop"))
		}
		fmt.Fprint(w, `{"query":{"pages":[{"linkshere":[{"title":"Delta"}]}]}}`)
	}))

	links, err := c.IncomingLinks(context.Background(), "Main_Page")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(links, []string{"Delta"}) {
		t.Errorf("got %v", links)
	}
}

func TestInfoMissing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"query":{"pages":[{"missing":true}]}}`)
	}))
	info, err := c.Info(context.Background(), "Does_Not_Exist")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Missing {
		t.Error("missing page not reported")
	}
}

func TestRevisionQueries(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("rvdir") == "newer" {
			fmt.Fprint(w, `{"query":{"pages":[{"revisions":[{"revid":100,"timestamp":"2020-01-01T00:00:00Z"}]}]}}`)
			return
		}
		fmt.Fprint(w, `{"query":{"pages":[{"revisions":[{"revid":900,"timestamp":"2024-08-15T00:00:00Z"}]}]}}`)
	}))

	rev, ok, err := c.RevisionAt(context.Background(), "Main_Page", "2024-09-01T00:00:00Z")
	if err != nil || !ok || rev.RevID != 900 {
		t.Errorf("RevisionAt = (%+v, %v, %v)", rev, ok, err)
	}
	first, ok, err := c.FirstRevision(context.Background(), "Main_Page")
	if err != nil || !ok || first.RevID != 100 {
		t.Errorf("FirstRevision = (%+v, %v, %v)", first, ok, err)
	}
}

func TestServerErrorsAreTransient(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := c.OutgoingLinks(context.Background(), "Main_Page")
	if !errs.Is(err, errs.Transient) {
		t.Errorf("got %v, want Transient", err)
	}
}

func TestClientErrorsAreSchema(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := c.OutgoingLinks(context.Background(), "Main_Page")
	if !errs.Is(err, errs.Schema) {
		t.Errorf("got %v, want Schema", err)
	}
}

func TestTopPageviews(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/api/rest_v1/metrics/pageviews/top/pw.wikipedia/all-access/2024/08/all-days"
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		fmt.Fprint(w, `{"items":[{"articles":[{"article":"Main_Page","views":1000,"rank":1},{"article":"Zürich","views":500,"rank":2}]}]}`)
	}))

	top, err := c.TopPageviews(context.Background(), 2024, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].Title != "Main_Page" || top[1].Views != 500 {
		t.Errorf("got %+v", top)
	}
}
