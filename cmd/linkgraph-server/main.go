// SPDX-License-Identifier: MIT

// Command linkgraph-server loads one link cache per configured edition
// at startup and answers GET /path/:wiki?start_title=...&end_title=...
// with a bidirectional-BFS shortest-path result, optionally streamed as
// newline-delimited JSON. Prometheus metrics are served on /metrics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wikigraph/linkgraph/internal/graph"
	"github.com/wikigraph/linkgraph/internal/pathservice"
	"github.com/wikigraph/linkgraph/internal/store"
	"github.com/wikigraph/linkgraph/internal/wikiapi"
)

func main() {
	port := flag.Int("port", 0, "port for serving HTTP requests")
	storeBase := flag.String("store-dir", os.Getenv(store.DirEnvVar), "base directory holding materialized stores")
	dumpDate := flag.String("dump-date", "", "dump date (YYYYMMDD) subdirectory each edition's store lives under")
	wikis := flag.String("wikis", "pwnwiki", "comma-separated editions to preload at startup")
	preload := flag.String("preload", "topk", "link cache preload mode: empty, topk, popular, or full")
	topK := flag.Int("topk", 10000, "vertex count preloaded by -preload=topk and -preload=popular")
	flag.Parse()

	if *port == 0 {
		*port, _ = strconv.Atoi(os.Getenv("PORT"))
	}
	if *storeBase == "" || *dumpDate == "" {
		log.Fatal("store-dir and dump-date are required")
	}

	logger := log.New(os.Stderr, "", log.Ldate|log.Ltime|log.LUTC)

	mode, err := parsePreloadMode(*preload)
	if err != nil {
		logger.Fatal(err)
	}

	metrics := graph.NewMetrics(prometheus.DefaultRegisterer)
	svc := pathservice.New(metrics)
	svc.PopularTitles = func(language string) ([]string, error) {
		api, err := wikiapi.NewClient(nil, language)
		if err != nil {
			return nil, err
		}
		// The current month's ranking is incomplete; use last month's.
		lastMonth := time.Now().UTC().AddDate(0, -1, 0)
		ranked, err := api.TopPageviews(context.Background(), lastMonth.Year(), int(lastMonth.Month()))
		if err != nil {
			return nil, err
		}
		titles := make([]string, len(ranked))
		for i, r := range ranked {
			titles[i] = r.Title
		}
		return titles, nil
	}
	for _, wiki := range splitNonEmpty(*wikis) {
		path := store.Path(*storeBase, *dumpDate, wiki)
		logger.Printf("loading edition %s from %s", wiki, path)
		if err := svc.LoadEdition(wiki, path, mode, *topK); err != nil {
			logger.Fatal(err)
		}
	}

	srv := &server{svc: svc, logger: logger}
	router := httprouter.New()
	router.GET("/", srv.handleRoot)
	router.GET("/path/:wiki", srv.handlePath)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	logger.Printf("listening for HTTP requests on port %d", *port)
	if err := http.ListenAndServe(":"+strconv.Itoa(*port), router); err != nil {
		logger.Fatal(err)
	}
}

type server struct {
	svc    *pathservice.Service
	logger *log.Logger
}

// handleRoot greets a human visitor and lists the loaded editions.
func (s *server) handleRoot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprintf(w, "<html><body><h1>Wikipedia Link Graph</h1>"+
		"<p>Shortest-path queries: <code>GET /path/:wiki?start_title=...&end_title=...&stream=true</code></p>"+
		"<p>Loaded editions: %s</p></body></html>", strings.Join(s.svc.Editions(), ", "))
}

// pathResponse is the JSON shape of one progress or final record sent to
// the client, either as a single document (non-streaming) or as one line
// of a newline-delimited stream.
type pathResponse struct {
	Status       string     `json:"status"`
	FromTitle    string     `json:"from_title,omitempty"`
	ToTitle      string     `json:"to_title,omitempty"`
	TotalVisited int64      `json:"total_visited"`
	ElapsedMS    int64      `json:"elapsed_ms"`
	Done         bool       `json:"done"`
	Paths        [][]string `json:"paths,omitempty"`
}

func toResponse(r pathservice.PathResult) pathResponse {
	done := r.Done || r.Status != pathservice.StatusOK
	return pathResponse{
		Status:       statusString(r.Status),
		FromTitle:    r.FromTitle,
		ToTitle:      r.ToTitle,
		TotalVisited: r.TotalVisited,
		ElapsedMS:    r.ElapsedMS,
		Done:         done,
		Paths:        r.Paths,
	}
}

func statusString(s pathservice.Status) string {
	switch s {
	case pathservice.StatusNotFound:
		return "not_found"
	case pathservice.StatusServerError:
		return "server_error"
	default:
		return "ok"
	}
}

// handlePath serves GET
// /path/:wiki?start_title=...&end_title=...&stream=<bool>. A non-
// streaming request returns a single JSON document (the final record);
// a streaming request returns a newline-delimited sequence of progress
// records, flushed as each arrives, terminated by the record with
// done=true.
func (s *server) handlePath(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	wiki := ps.ByName("wiki")
	fromTitle := r.URL.Query().Get("start_title")
	toTitle := r.URL.Query().Get("end_title")
	stream := r.URL.Query().Get("stream") == "true"

	if fromTitle == "" || toTitle == "" {
		http.Error(w, "start_title and end_title are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	if !stream {
		result, err := s.svc.Query(ctx, wiki, fromTitle, toTitle)
		writeStatus(w, result.Status)
		json.NewEncoder(w).Encode(toResponse(result))
		if err != nil {
			s.logger.Printf("path query %s (%s -> %s) failed: %v", wiki, fromTitle, toTitle, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	first := true
	err := s.svc.Stream(ctx, wiki, fromTitle, toTitle, func(r pathservice.PathResult) {
		if first {
			writeStatus(w, r.Status)
			first = false
		}
		json.NewEncoder(w).Encode(toResponse(r))
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		s.logger.Printf("path stream %s (%s -> %s) failed: %v", wiki, fromTitle, toTitle, err)
	}
}

func writeStatus(w http.ResponseWriter, status pathservice.Status) {
	switch status {
	case pathservice.StatusNotFound:
		w.WriteHeader(http.StatusNotFound)
	case pathservice.StatusServerError:
		w.WriteHeader(http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func parsePreloadMode(s string) (pathservice.PreloadMode, error) {
	switch s {
	case "empty":
		return pathservice.PreloadEmpty, nil
	case "topk":
		return pathservice.PreloadTopK, nil
	case "full":
		return pathservice.PreloadFull, nil
	case "popular":
		return pathservice.PreloadPopular, nil
	default:
		return 0, fmt.Errorf("unknown preload mode %q", s)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
