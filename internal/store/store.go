// SPDX-License-Identifier: MIT

// Package store is the materialized per-edition link graph: a SQLite
// database with three tables (Page, WikiLink, Info), built once by the
// graph builder and read many times by the link cache, BFS kernels, and
// statistics aggregator. Journaling and synchronous writes are off
// during the build; each phase inserts far too many rows to pay for
// either.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wikigraph/linkgraph/internal/errs"
)

const (
	// sqliteCacheSizeMegabytes sizes SQLite's page cache generously since
	// a single edition's build holds the entire title->id map in memory
	// anyway; the larger page cache mostly helps the indexing phase.
	sqliteCacheSizeMegabytes = 512
)

// DirEnvVar names the environment variable holding the default store
// directory.
const DirEnvVar = "DB_WIKIS_DIR"

// Info mirrors the Info table: one row per store, recording build and
// validation provenance.
type Info struct {
	IsDone              bool
	IsValidated         bool
	NumPagesValidated   int64
	InsertionTimeS      float64
	IndexCreationTimeS  float64
	ValidationTimeS     float64
}

// Store is a handle to one edition's materialized link graph.
type Store struct {
	db   *sql.DB
	path string
}

// Path returns the store's on-disk location,
// <base>/<dumpDate>/sqlite/<wiki>_database.sqlite.
func Path(base, dumpDate, wiki string) string {
	return filepath.Join(base, dumpDate, "sqlite", wiki+"_database.sqlite")
}

// Create opens a brand-new store at path, creating its directory and
// schema. It fails if the file already exists; callers that want
// overwrite semantics should remove the file first (see
// pipeline.Orchestrator's resumption policy).
func Create(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.New(errs.Config, "store.Create", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, errs.New(errs.Config, "store.Create", fmt.Errorf("store already exists: %s", path))
	}
	db, err := openWithPragmas(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing, already-built store read-only-ish: writers are
// still possible (Validate updates Info) but the build phases never run
// again against it.
func Open(path string) (*Store, error) {
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		return nil, errs.New(errs.Config, "store.Open", fmt.Errorf("missing or empty store: %s", path))
	}
	db, err := openWithPragmas(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Exists reports whether a non-empty store file is present at path,
// the check the orchestrator's resumption policy uses to elide a wiki
// from the job set when overwrite_sql=false.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}

func openWithPragmas(path string) (*sql.DB, error) {
	// A negative cache_size is read by SQLite as a size in KiB.
	cacheKiB := strconv.Itoa(sqliteCacheSizeMegabytes * 1024)
	dsn := "file:" + path + "?_journal=OFF&_sync=OFF&_cache_size=-" + cacheKiB
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errs.New(errs.Config, "store.open", err)
	}
	// Writers exist only during single-threaded build phases, so one
	// connection is enough and avoids SQLITE_BUSY churn against a
	// single file.
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE Page (
			page_id INTEGER NOT NULL,
			page_title TEXT NOT NULL,
			is_redirect INTEGER NOT NULL
		);
		CREATE TABLE WikiLink (
			from_id INTEGER NOT NULL,
			to_id INTEGER NOT NULL
		);
		CREATE TABLE Info (
			id INTEGER PRIMARY KEY CHECK (id = 0),
			is_done INTEGER NOT NULL DEFAULT 0,
			is_validated INTEGER NOT NULL DEFAULT 0,
			num_pages_validated INTEGER NOT NULL DEFAULT 0,
			insertion_time_s REAL NOT NULL DEFAULT 0,
			index_creation_time_s REAL NOT NULL DEFAULT 0,
			validation_time_s REAL NOT NULL DEFAULT 0
		);
		INSERT INTO Info (id) VALUES (0);
	`)
	if err != nil {
		return errs.New(errs.Config, "store.createSchema", err)
	}
	return nil
}

// CreateIndices builds the secondary indices, deferred until after all
// inserts. The unique (from_id, to_id) edge index already exists by
// now: the PageLink phase creates it up front so its INSERT OR IGNORE
// has a live constraint to suppress duplicates against. Returns the
// elapsed time for Info's index_creation_time_s bookkeeping.
func (s *Store) CreateIndices() (time.Duration, error) {
	start := time.Now()
	stmts := []string{
		`CREATE UNIQUE INDEX page_id_title ON Page (page_id, page_title)`,
		`CREATE INDEX wikilink_from ON WikiLink (from_id)`,
		`CREATE INDEX wikilink_to ON WikiLink (to_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return 0, errs.New(errs.Config, "store.CreateIndices", err)
		}
	}
	return time.Since(start), nil
}

// createEdgeIndex builds the unique (from_id, to_id) index, called by
// the builder before edge insertion starts.
func (s *Store) createEdgeIndex() error {
	_, err := s.db.Exec(`CREATE UNIQUE INDEX wikilink_from_to ON WikiLink (from_id, to_id)`)
	if err != nil {
		return errs.New(errs.Config, "store.createEdgeIndex", err)
	}
	return nil
}

// Finish records the build's provenance on Info and flips is_done, the
// terminal step of the three-phase build.
func (s *Store) Finish(insertionTime, indexTime time.Duration) error {
	_, err := s.db.Exec(
		`UPDATE Info SET is_done = 1, insertion_time_s = ?, index_creation_time_s = ? WHERE id = 0`,
		insertionTime.Seconds(), indexTime.Seconds(),
	)
	if err != nil {
		return errs.New(errs.Config, "store.Finish", err)
	}
	return nil
}

// MarkValidated updates Info after a validation run completes.
func (s *Store) MarkValidated(numPages int64, elapsed time.Duration) error {
	_, err := s.db.Exec(
		`UPDATE Info SET is_validated = 1, num_pages_validated = ?, validation_time_s = ? WHERE id = 0`,
		numPages, elapsed.Seconds(),
	)
	if err != nil {
		return errs.New(errs.Config, "store.MarkValidated", err)
	}
	return nil
}

// GetInfo reads back the Info row.
func (s *Store) GetInfo() (Info, error) {
	var info Info
	var isDone, isValidated int
	row := s.db.QueryRow(`SELECT is_done, is_validated, num_pages_validated, insertion_time_s, index_creation_time_s, validation_time_s FROM Info WHERE id = 0`)
	err := row.Scan(&isDone, &isValidated, &info.NumPagesValidated, &info.InsertionTimeS, &info.IndexCreationTimeS, &info.ValidationTimeS)
	if err != nil {
		return Info{}, errs.New(errs.Config, "store.GetInfo", err)
	}
	info.IsDone = isDone != 0
	info.IsValidated = isValidated != 0
	return info, nil
}

// DB exposes the underlying *sql.DB for packages (graph, stats, validate)
// that need to issue their own queries; builder insertion, on the other
// hand, is funneled entirely through Builder in build.go to keep the
// transaction discipline in one place.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the SQLite connection.
func (s *Store) Close() error { return s.db.Close() }

// Remove deletes the store file, used by the orchestrator's
// overwrite_sql=true resumption path.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errs.New(errs.Config, "store.Remove", err)
	}
	return nil
}
