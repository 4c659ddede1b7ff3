// SPDX-License-Identifier: MIT

// Package pathservice is the shortest-path service: it loads one link
// cache per configured edition at startup and answers (wiki, from_title,
// to_title) queries by resolving titles to ids and running a
// bidirectional BFS, streaming or collecting its progress.
package pathservice

import (
	"context"
	"fmt"

	"github.com/wikigraph/linkgraph/internal/errs"
	"github.com/wikigraph/linkgraph/internal/graph"
	"github.com/wikigraph/linkgraph/internal/store"
	"github.com/wikigraph/linkgraph/internal/wikisite"
)

// PreloadMode selects how eagerly an edition's link cache is populated
// at startup.
type PreloadMode int

const (
	PreloadEmpty PreloadMode = iota
	PreloadTopK
	PreloadFull
	// PreloadPopular preloads the vertices named by the Service's
	// PopularTitles hook (typically last month's pageview ranking)
	// instead of the top-degree vertices.
	PreloadPopular
)

// edition bundles one wiki's store handle with its outgoing and incoming
// caches, the pair BidirectionalBFS needs.
type edition struct {
	language string
	store    *store.Store
	outgoing *graph.Cache
	incoming *graph.Cache
}

// Service answers shortest-path queries for every edition it was
// configured with. It is built once at process startup; each edition's
// Store and Cache live for the Service's whole lifetime.
type Service struct {
	editions map[string]*edition
	metrics  *graph.Metrics

	// PopularTitles, consulted by LoadEdition in PreloadPopular mode,
	// returns the article titles worth preloading for a language
	// edition, most popular first. Unresolvable titles are skipped.
	PopularTitles func(language string) ([]string, error)
}

// New builds an empty Service. Call LoadEdition once per configured wiki
// before serving requests.
func New(metrics *graph.Metrics) *Service {
	return &Service{editions: make(map[string]*edition), metrics: metrics}
}

// LoadEdition opens wiki's store at storePath and builds its outgoing and
// incoming link caches in mode, registering the edition under wiki for
// subsequent Resolve/Query calls.
func (s *Service) LoadEdition(wiki, storePath string, mode PreloadMode, topK int) error {
	st, err := store.Open(storePath)
	if err != nil {
		return err
	}

	ed := wikisite.NewEdition(wiki, storePath)

	var outCache, inCache *graph.Cache
	switch mode {
	case PreloadPopular:
		ids, perr := s.popularIDs(ed.Language, st, topK)
		if perr != nil {
			st.Close()
			return perr
		}
		outCache, err = graph.PartialIDs(st, graph.Outgoing, ids, s.metrics)
		if err != nil {
			st.Close()
			return err
		}
		inCache, err = graph.PartialIDs(st, graph.Incoming, ids, s.metrics)
		if err != nil {
			st.Close()
			return err
		}
	case PreloadFull:
		outCache, err = graph.Full(st, graph.Outgoing, s.metrics)
		if err != nil {
			st.Close()
			return err
		}
		inCache, err = graph.Full(st, graph.Incoming, s.metrics)
		if err != nil {
			st.Close()
			return err
		}
	case PreloadTopK:
		outCache, err = graph.PartialTopK(st, graph.Outgoing, topK, s.metrics)
		if err != nil {
			st.Close()
			return err
		}
		inCache, err = graph.PartialTopK(st, graph.Incoming, topK, s.metrics)
		if err != nil {
			st.Close()
			return err
		}
	default:
		outCache = graph.Empty(st, graph.Outgoing, s.metrics)
		inCache = graph.Empty(st, graph.Incoming, s.metrics)
	}

	s.editions[wiki] = &edition{language: ed.Language, store: st, outgoing: outCache, incoming: inCache}
	return nil
}

// popularIDs resolves the PopularTitles ranking to page ids, keeping at
// most limit of them. Titles missing from the store (deleted since the
// ranking month, or non-article entries like Special: pages the metrics
// feed includes) are skipped.
func (s *Service) popularIDs(language string, st *store.Store, limit int) ([]uint32, error) {
	if s.PopularTitles == nil {
		return nil, errs.New(errs.Config, "pathservice.popularIDs",
			fmt.Errorf("PreloadPopular requires a PopularTitles hook"))
	}
	titles, err := s.PopularTitles(language)
	if err != nil {
		return nil, err
	}
	var ids []uint32
	for _, title := range titles {
		if limit > 0 && len(ids) >= limit {
			break
		}
		id, ok, err := st.TitleToID(wikisite.NormalizeTitle(language, title))
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Close releases every loaded edition's store connection.
func (s *Service) Close() {
	for _, ed := range s.editions {
		ed.store.Close()
	}
}

// Status is the coarse outcome of a path query, distinguishing a bad
// request (unknown edition or title) from a store failure.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusServerError
)

// PathResult is the final, fully-resolved outcome of a shortest-path
// query: titles rather than bare ids, ready for a response body.
type PathResult struct {
	Status       Status
	FromTitle    string
	ToTitle      string
	TotalVisited int64
	ElapsedMS    int64
	Done         bool
	Paths        [][]string
}

// Query runs a non-streaming shortest-path lookup: it consumes the whole
// BidirectionalBFS progress stream internally and returns only the final
// record.
func (s *Service) Query(ctx context.Context, wiki, fromTitle, toTitle string) (PathResult, error) {
	ed, fromID, toID, status, err := s.resolve(wiki, fromTitle, toTitle)
	if status != StatusOK {
		return PathResult{Status: status}, err
	}

	progress := make(chan graph.Progress, 1)
	go graph.BidirectionalBFS(ctx, ed.outgoing, ed.incoming, fromID, toID, progress)

	var last graph.Progress
	for p := range progress {
		last = p
	}
	return s.toResult(ed, fromTitle, toTitle, last), nil
}

// Stream runs a streaming shortest-path lookup, forwarding every
// intermediate progress record to the caller's sink as it arrives. The
// caller supplies sink rather than a raw channel so the HTTP framing
// layer controls how a record is serialized and flushed.
func (s *Service) Stream(ctx context.Context, wiki, fromTitle, toTitle string, sink func(PathResult)) error {
	ed, fromID, toID, status, err := s.resolve(wiki, fromTitle, toTitle)
	if status != StatusOK {
		sink(PathResult{Status: status})
		return err
	}

	progress := make(chan graph.Progress, 1)
	go graph.BidirectionalBFS(ctx, ed.outgoing, ed.incoming, fromID, toID, progress)

	for p := range progress {
		sink(s.toResult(ed, fromTitle, toTitle, p))
	}
	return nil
}

func (s *Service) resolve(wiki, fromTitle, toTitle string) (*edition, uint32, uint32, Status, error) {
	ed, ok := s.editions[wiki]
	if !ok {
		return nil, 0, 0, StatusNotFound, fmt.Errorf("unsupported edition %q", wiki)
	}

	from := wikisite.NormalizeTitle(ed.language, fromTitle)
	to := wikisite.NormalizeTitle(ed.language, toTitle)

	fromID, ok, err := ed.store.TitleToID(from)
	if err != nil {
		return nil, 0, 0, StatusServerError, errs.New(errs.Transient, "pathservice.resolve", err)
	}
	if !ok {
		return nil, 0, 0, StatusNotFound, fmt.Errorf("unknown title %q", fromTitle)
	}
	toID, ok, err := ed.store.TitleToID(to)
	if err != nil {
		return nil, 0, 0, StatusServerError, errs.New(errs.Transient, "pathservice.resolve", err)
	}
	if !ok {
		return nil, 0, 0, StatusNotFound, fmt.Errorf("unknown title %q", toTitle)
	}

	// A query naming a redirect means its target article; follow the
	// chain before searching.
	if fromID, err = ed.store.ResolveRedirectChain(fromID); err != nil {
		return nil, 0, 0, StatusServerError, errs.New(errs.Transient, "pathservice.resolve", err)
	}
	if toID, err = ed.store.ResolveRedirectChain(toID); err != nil {
		return nil, 0, 0, StatusServerError, errs.New(errs.Transient, "pathservice.resolve", err)
	}
	return ed, fromID, toID, StatusOK, nil
}

// toResult resolves a graph.Progress's id paths into titles through
// ed's store.
func (s *Service) toResult(ed *edition, fromTitle, toTitle string, p graph.Progress) PathResult {
	res := PathResult{
		Status:       StatusOK,
		FromTitle:    fromTitle,
		ToTitle:      toTitle,
		TotalVisited: p.TotalVisited,
		ElapsedMS:    p.ElapsedMS,
		Done:         p.Done,
	}
	if !p.Done {
		return res
	}
	for _, idPath := range p.Paths {
		titlePath := make([]string, 0, len(idPath))
		for _, id := range idPath {
			title, ok, err := ed.store.IDToTitle(id)
			if err != nil || !ok {
				continue
			}
			titlePath = append(titlePath, title)
		}
		res.Paths = append(res.Paths, titlePath)
	}
	return res
}

// Editions lists the wiki identifiers currently loaded, used by the HTTP
// framing layer to validate a request's :wiki path parameter cheaply
// before touching a store.
func (s *Service) Editions() []string {
	out := make([]string, 0, len(s.editions))
	for w := range s.editions {
		out = append(out, w)
	}
	return out
}
