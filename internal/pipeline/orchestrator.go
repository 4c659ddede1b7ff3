// SPDX-License-Identifier: MIT

// Package pipeline is the ingest orchestrator: jobs keyed by (wiki,
// table) flow through download, unpack, and build stages, with bounded
// slots limiting concurrent downloads and concurrent build phases
// across wikis.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wikigraph/linkgraph/internal/errs"
	"github.com/wikigraph/linkgraph/internal/fetch"
	"github.com/wikigraph/linkgraph/internal/sqldump"
	"github.com/wikigraph/linkgraph/internal/store"
	"github.com/wikigraph/linkgraph/internal/unpack"
)

// Table names the three MediaWiki dump tables the builder consumes, in
// their required processing order for a single wiki: page before
// pagelinks, linktarget before pagelinks.
type Table string

const (
	TablePage       Table = "page"
	TableLinkTarget Table = "linktarget"
	TablePageLinks  Table = "pagelinks"
)

// Job is one (wiki, table) unit of work.
type Job struct {
	Wiki  string
	Table Table

	DownloadURL string
	MD5         string
	LocalGzPath string
}

// Config holds the orchestrator's tunables. Downloads default to 2
// workers (the origin mirror's connection cap) and builds to 2.
type Config struct {
	DownloadWorkers int
	BuilderWorkers  int
	OverwriteSQL    bool
	StoreBase       string
	DumpDate        string

	// PostBuild, if set, runs inline after a wiki's last build phase
	// completes, before Run returns that wiki's store. Post-build
	// validation hooks in here so a failing wiki surfaces while its raw
	// dumps are still on disk for the pre-validation fallback.
	PostBuild func(ctx context.Context, wiki string, s *store.Store) error
}

// DefaultConfig returns a Config with the default worker counts.
func DefaultConfig() Config {
	return Config{DownloadWorkers: 2, BuilderWorkers: 2}
}

// Orchestrator runs the full ingest pipeline for a set of wikis.
type Orchestrator struct {
	cfg Config

	// downloadSlots bounds concurrent downloads across all wikis to
	// cfg.DownloadWorkers. The origin mirror caps concurrent connections
	// (2 at time of writing), so the scheduler must never exceed it no
	// matter how many wikis run in parallel.
	downloadSlots chan struct{}
	// buildSlots bounds concurrent build phases to cfg.BuilderWorkers;
	// write contention on the local disk dominates past a small count.
	buildSlots chan struct{}

	doneCount int64
	totalJobs int64
}

// New builds an Orchestrator for cfg.
func New(cfg Config) *Orchestrator {
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = 2
	}
	if cfg.BuilderWorkers <= 0 {
		cfg.BuilderWorkers = 2
	}
	return &Orchestrator{
		cfg:           cfg,
		downloadSlots: make(chan struct{}, cfg.DownloadWorkers),
		buildSlots:    make(chan struct{}, cfg.BuilderWorkers),
	}
}

// PlanWikis filters wikis down to the set that still needs building,
// applying the resumption policy: a wiki whose output store
// exists, is non-empty, and OverwriteSQL is false is elided and reported
// as already-done; with OverwriteSQL true its existing file is removed
// and it is rescheduled.
func (o *Orchestrator) PlanWikis(wikis []string) (scheduled, alreadyDone []string, err error) {
	for _, wiki := range wikis {
		path := store.Path(o.cfg.StoreBase, o.cfg.DumpDate, wiki)
		if store.Exists(path) {
			if !o.cfg.OverwriteSQL {
				alreadyDone = append(alreadyDone, wiki)
				continue
			}
			if err := store.Remove(path); err != nil {
				return nil, nil, err
			}
		}
		scheduled = append(scheduled, wiki)
	}
	return scheduled, alreadyDone, nil
}

// Run executes the three-phase pipeline for every wiki in wikis, each
// producing a materialized *store.Store. Downloads across wikis
// parallelize up to the bounded download slots; the three table phases
// of one wiki stay serialized on that wiki's goroutine, which is what
// the builder's phase ordering requires. Returns a
// map of wiki -> built Store; callers own closing each Store.
func (o *Orchestrator) Run(ctx context.Context, wikis []string, jobFor func(wiki string, table Table) (Job, error)) (map[string]*store.Store, error) {
	tables := []Table{TablePage, TableLinkTarget, TablePageLinks}
	o.totalJobs = int64(len(wikis) * len(tables))

	results := make(map[string]*store.Store, len(wikis))
	var resultsMu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)

	// One goroutine per wiki drives that wiki's three serialized
	// phases; it is the unit across which downloads may NOT
	// parallelize with each other (pagelinks waits on page+linktarget).
	for _, wiki := range wikis {
		wiki := wiki
		group.Go(func() error {
			s, err := o.buildWiki(groupCtx, wiki, tables, jobFor)
			if err != nil {
				return err
			}
			resultsMu.Lock()
			results[wiki] = s
			resultsMu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		for _, s := range results {
			s.Close()
		}
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) buildWiki(ctx context.Context, wiki string, tables []Table, jobFor func(string, Table) (Job, error)) (*store.Store, error) {
	path := store.Path(o.cfg.StoreBase, o.cfg.DumpDate, wiki)
	s, err := store.Create(path)
	if err != nil {
		return nil, err
	}
	builder := store.NewBuilder(s)
	insertStart := time.Now()

	for _, table := range tables {
		job, err := jobFor(wiki, table)
		if err != nil {
			s.Close()
			return nil, err
		}

		if err := o.downloadAndUnpack(ctx, job); err != nil {
			s.Close()
			return nil, err
		}

		reader, closeFn, err := openTable(job.LocalGzPath)
		if err != nil {
			s.Close()
			return nil, err
		}
		select {
		case o.buildSlots <- struct{}{}:
		case <-ctx.Done():
			closeFn()
			s.Close()
			return nil, ctx.Err()
		}
		phaseErr := o.runBuildPhase(builder, table, reader)
		<-o.buildSlots
		closeFn()
		if phaseErr != nil {
			s.Close()
			return nil, phaseErr
		}

		atomic.AddInt64(&o.doneCount, 1)
	}

	if err := builder.Finish(time.Since(insertStart)); err != nil {
		s.Close()
		return nil, err
	}

	if o.cfg.PostBuild != nil {
		if err := o.cfg.PostBuild(ctx, wiki, s); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (o *Orchestrator) runBuildPhase(b *store.Builder, table Table, reader *sqldump.Reader) error {
	switch table {
	case TablePage:
		return b.BuildPage(reader)
	case TableLinkTarget:
		return b.BuildLinkTarget(reader)
	case TablePageLinks:
		return b.BuildPageLinks(reader)
	default:
		return errs.New(errs.Config, "pipeline.runBuildPhase", fmt.Errorf("unknown table %q", table))
	}
}

// downloadAndUnpack acquires one of the bounded download slots, fetches
// the job's table file, and unpacks it in place. Unpacking happens on
// the same goroutine after the slot is released: decompression is local
// disk work that should not hold a scarce mirror connection.
func (o *Orchestrator) downloadAndUnpack(ctx context.Context, job Job) error {
	select {
	case o.downloadSlots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	err := fetch.Download(ctx, nil, job.DownloadURL, job.LocalGzPath, job.MD5)
	<-o.downloadSlots
	if err != nil {
		return err
	}
	return unpack.Unpack(job.LocalGzPath, false, false)
}

func openTable(gzPath string) (*sqldump.Reader, func(), error) {
	path := unpack.DestPath(gzPath)
	mapped, err := sqldump.OpenMapped(path)
	if err != nil {
		return nil, nil, errs.New(errs.Schema, "pipeline.openTable", err)
	}
	reader, err := sqldump.NewReader(mapped.Reader())
	if err != nil {
		mapped.Close()
		return nil, nil, errs.New(errs.Schema, "pipeline.openTable", err)
	}
	return reader, func() { mapped.Close() }, nil
}

// Progress reports how many (wiki, table) jobs have completed out of
// the total scheduled.
func (o *Orchestrator) Progress() (done, total int64) {
	return atomic.LoadInt64(&o.doneCount), o.totalJobs
}
