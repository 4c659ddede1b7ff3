// SPDX-License-Identifier: MIT

// Command linkgraph-builder drives the ingest pipeline: it resolves the
// latest complete dump date for a set of wikis, downloads and unpacks
// their page/linktarget/pagelinks tables, materializes each edition's
// link graph, and recomputes the statistics report. Optional passes run
// post-build validation against the live API, BFS sampling, and a
// weakly-connected-component sweep.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wikigraph/linkgraph/internal/errs"
	"github.com/wikigraph/linkgraph/internal/fetch"
	"github.com/wikigraph/linkgraph/internal/pipeline"
	"github.com/wikigraph/linkgraph/internal/stats"
	"github.com/wikigraph/linkgraph/internal/store"
	"github.com/wikigraph/linkgraph/internal/wikisite"
)

var logger *log.Logger

// requiredTables lists the dump tables the builder consumes,
// the same set the dump catalog checks for completeness.
var requiredTables = []string{"page", "linktarget", "pagelinks"}

func main() {
	wikis := flag.String("wikis", "pwnwiki", "comma-separated list of wiki editions to build, e.g. enwiki,dewiki")
	dumpDate := flag.String("dump-date", "", "dump date (YYYYMMDD) to build; empty resolves the latest complete date")
	mirrorList := flag.String("mirrors", "https://dumps.wikimedia.org", "comma-separated mirror base URLs, authoritative origin last")
	storeBase := flag.String("store-dir", os.Getenv(store.DirEnvVar), "base directory for downloads and materialized stores")
	downloadWorkers := flag.Int("download-workers", 2, "concurrent download workers")
	builderWorkers := flag.Int("builder-workers", 2, "concurrent builder workers")
	overwrite := flag.Bool("overwrite-sql", false, "rebuild a wiki's store even if one already exists")
	allowFallback := flag.Bool("allow-fallback", true, "fall back to an older dump date if the newest candidate is incomplete")
	checkAllDays := flag.Bool("check-all-days", false, "probe every calendar day instead of just the 1st and 20th")
	validate := flag.Bool("validate", false, "run post-build validation against the live upstream API")
	validateSamples := flag.Int("validate-samples", 10, "random articles to draw per wiki for -validate")
	bfsSamples := flag.Int("bfs-samples", 0, "single-source BFS sample runs per wiki; 0 skips the sample harness")
	bfsWorkers := flag.Int("bfs-workers", 4, "worker threads for -bfs-samples")
	wcc := flag.Bool("wcc", false, "sweep weakly connected components after building")
	reportPath := flag.String("report", "", "path to the statistics report file; empty skips stats aggregation")
	checkCatalog := flag.Bool("check-catalog", false, "print the resolved dump date and exit, without building anything")
	flag.Parse()

	if *storeBase == "" {
		log.Fatal("store-dir is required (or set DB_WIKIS_DIR)")
	}

	logPath := filepath.Join("logs", "linkgraph-builder.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		log.Fatal(err)
	}
	logfile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatal(err)
	}
	defer logfile.Close()
	logger = log.New(logfile, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
	logger.Printf("linkgraph-builder starting up")

	wikiList := splitNonEmpty(*wikis)
	if len(wikiList) == 0 {
		logger.Fatal("no wikis given")
	}

	mirrors := fetch.MirrorList(splitNonEmpty(*mirrorList))
	if len(mirrors) == 1 && *downloadWorkers > fetch.OriginConcurrencyLimit {
		// With no mirror in front of the origin, every download hits the
		// origin's connection cap directly.
		logger.Printf("capping download workers at %d (origin connection limit)", fetch.OriginConcurrencyLimit)
		*downloadWorkers = fetch.OriginConcurrencyLimit
	}
	catalog := wikisite.NewCatalog(http.DefaultClient, mirrors.Origin())

	date := *dumpDate
	if date == "" {
		resolved, ok := catalog.LatestCompleteDate(wikiList, requiredTables, *allowFallback, *checkAllDays)
		if !ok {
			logger.Fatal("no complete dump date found for the requested wikis")
		}
		date = resolved
	}
	logger.Printf("using dump date %s", date)

	if *checkCatalog {
		fmt.Printf("%s\n", date)
		return
	}

	if artifacts, err := catalog.DumpFiles(wikiList[0], date); err == nil {
		var total uint64
		for _, a := range artifacts {
			total += a.Bytes
		}
		logger.Printf("%s/%s lists %d dump files, %d bytes total", wikiList[0], date, len(artifacts), total)
	}

	cfg := pipeline.Config{
		DownloadWorkers: *downloadWorkers,
		BuilderWorkers:  *builderWorkers,
		OverwriteSQL:    *overwrite,
		StoreBase:       *storeBase,
		DumpDate:        date,
	}
	if *validate {
		cfg.PostBuild = func(ctx context.Context, wiki string, s *store.Store) error {
			return runValidation(ctx, wiki, s, *storeBase, date, *validateSamples)
		}
	}
	orch := pipeline.New(cfg)

	scheduled, alreadyDone, err := orch.PlanWikis(wikiList)
	if err != nil {
		logger.Fatal(err)
	}
	for _, w := range alreadyDone {
		logger.Printf("%s: store already built, skipping (overwrite-sql=false)", w)
	}
	if len(scheduled) == 0 {
		logger.Printf("nothing to build")
		return
	}

	jb := newJobBuilder(mirrors, *storeBase, date)
	ctx := context.Background()
	stores, err := orch.Run(ctx, scheduled, jb.jobFor)
	if err != nil {
		logger.Fatal(err)
	}
	defer func() {
		for _, s := range stores {
			s.Close()
		}
	}()

	done, total := orch.Progress()
	logger.Printf("build complete: %d/%d jobs", done, total)

	if *bfsSamples > 0 || *wcc {
		acfg := analysisConfig{
			BFSSamples: *bfsSamples,
			BFSWorkers: *bfsWorkers,
			WCC:        *wcc,
			OutDir:     filepath.Join(*storeBase, date, "analysis"),
		}
		for wiki, s := range stores {
			if err := runAnalysis(wiki, s, acfg); err != nil {
				logger.Printf("%s: graph analysis failed: %v", wiki, err)
			}
		}
	}

	if *reportPath != "" {
		if err := recomputeStats(stores, *reportPath); err != nil {
			logger.Printf("stats aggregation failed: %v", err)
		}
	}
}

// jobBuilder resolves a (wiki, table) pair into a pipeline.Job, caching
// each wiki's resolved MD5 manifest across its three table jobs so the
// manifest is fetched once per wiki rather than once per table. jobFor
// is called from one goroutine per wiki, so the cache takes a lock.
type jobBuilder struct {
	mirrors   fetch.MirrorList
	storeBase string
	date      string

	mu       sync.Mutex
	md5Cache map[string]map[string]string // wiki -> filename -> md5
}

func newJobBuilder(mirrors fetch.MirrorList, storeBase, date string) *jobBuilder {
	return &jobBuilder{mirrors: mirrors, storeBase: storeBase, date: date, md5Cache: make(map[string]map[string]string)}
}

func (jb *jobBuilder) jobFor(wiki string, table pipeline.Table) (pipeline.Job, error) {
	ctx := context.Background()
	tableFile := fmt.Sprintf("%s-%s-%s.sql.gz", wiki, jb.date, table)
	pathSuffix := fmt.Sprintf("%s/%s/%s", wiki, jb.date, tableFile)

	url, err := fetch.ResolveURL(ctx, http.DefaultClient, jb.mirrors, pathSuffix)
	if err != nil {
		return pipeline.Job{}, err
	}

	sums, err := jb.md5sums(ctx, wiki)
	if err != nil {
		return pipeline.Job{}, err
	}

	localPath := filepath.Join(jb.storeBase, jb.date, "downloads", tableFile)
	return pipeline.Job{
		Wiki:        wiki,
		Table:       table,
		DownloadURL: url,
		MD5:         sums[tableFile],
		LocalGzPath: localPath,
	}, nil
}

func (jb *jobBuilder) md5sums(ctx context.Context, wiki string) (map[string]string, error) {
	jb.mu.Lock()
	sums, ok := jb.md5Cache[wiki]
	jb.mu.Unlock()
	if ok {
		return sums, nil
	}
	manifestSuffix := fmt.Sprintf("%s/%s/%s-%s-md5sums.txt", wiki, jb.date, wiki, jb.date)
	url, err := fetch.ResolveURL(ctx, http.DefaultClient, jb.mirrors, manifestSuffix)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.Config, "linkgraph-builder.md5sums", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errs.New(errs.Transient, "linkgraph-builder.md5sums", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.Transient, "linkgraph-builder.md5sums", fmt.Errorf("status %d", resp.StatusCode))
	}
	sums, err = fetch.MD5Sums(resp.Body)
	if err != nil {
		return nil, err
	}
	jb.mu.Lock()
	jb.md5Cache[wiki] = sums
	jb.mu.Unlock()
	return sums, nil
}

// recomputeStats loads any previous report at reportPath, computes the
// metrics of each freshly-built edition that report does not already
// hold, merges them in, and writes the report back out.
func recomputeStats(stores map[string]*store.Store, reportPath string) error {
	report, err := stats.Load(reportPath)
	if err != nil {
		return err
	}
	for wiki, s := range stores {
		if !report.NeedsRecompute(wiki) {
			continue
		}
		er, err := stats.ComputeEdition(s)
		if err != nil {
			return err
		}
		report.Merge(wiki, er)
	}
	if err := stats.Save(report, reportPath); err != nil {
		return err
	}
	return stats.SaveHumanReadable(report, strings.TrimSuffix(reportPath, filepath.Ext(reportPath))+".json")
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
