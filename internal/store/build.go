// SPDX-License-Identifier: MIT

package store

import (
	"time"

	"github.com/wikigraph/linkgraph/internal/errs"
	"github.com/wikigraph/linkgraph/internal/sqldump"
)

// Builder drives the three-phase build against one Store. All three
// phases share one store and one connection; the in-memory linktarget
// map is held on the Builder and released after the PageLink phase
// runs.
type Builder struct {
	store *Store

	// titleToID is populated during the Page phase and consulted during
	// the PageLink phase to resolve a linktarget's title to a page id.
	titleToID map[string]uint32

	// linktargetToTitle is populated during the LinkTarget phase and
	// released once the PageLink phase that consumes it returns.
	linktargetToTitle map[uint64]string

	numPages     int64
	numRedirects int64
	numEdges     int64
}

// NewBuilder wraps store for a build run.
func NewBuilder(store *Store) *Builder {
	return &Builder{store: store}
}

// BuildPage runs Phase 1: iterate the Page SQL stream, skip rows whose
// namespace is not 0, and insert (page_id, title, is_redirect). Builds the
// in-memory title->id map consumed by BuildPageLinks.
func (b *Builder) BuildPage(rows *sqldump.Reader) error {
	dec, err := sqldump.NewPageDecoder(rows.Columns())
	if err != nil {
		return errs.New(errs.Schema, "store.BuildPage", err)
	}

	tx, err := b.store.db.Begin()
	if err != nil {
		return errs.New(errs.Config, "store.BuildPage", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO Page (page_id, page_title, is_redirect) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return errs.New(errs.Config, "store.BuildPage", err)
	}
	defer stmt.Close()

	b.titleToID = make(map[string]uint32, 1<<20)
	for {
		raw, err := rows.Read()
		if err != nil {
			tx.Rollback()
			return errs.New(errs.Schema, "store.BuildPage", err)
		}
		if raw == nil {
			break
		}
		// Namespace checks happen before any hashmap lookup, so
		// non-article rows never pollute titleToID.
		row, err := dec.Decode(raw)
		if err != nil {
			tx.Rollback()
			return errs.New(errs.Schema, "store.BuildPage", err)
		}
		if row.Namespace != 0 {
			continue
		}
		isRedirect := 0
		if row.IsRedirect {
			isRedirect = 1
			b.numRedirects++
		}
		if _, err := stmt.Exec(row.ID, row.Title, isRedirect); err != nil {
			tx.Rollback()
			return errs.New(errs.Config, "store.BuildPage", err)
		}
		b.titleToID[row.Title] = row.ID
		b.numPages++
	}
	if err := tx.Commit(); err != nil {
		return errs.New(errs.Config, "store.BuildPage", err)
	}
	return nil
}

// BuildLinkTarget runs Phase 2: iterate the LinkTarget SQL stream and
// build linktargetToTitle for namespace-0 entries only. Nothing is
// persisted to the store in this phase; the map is purely an in-memory
// indirection used by BuildPageLinks.
func (b *Builder) BuildLinkTarget(rows *sqldump.Reader) error {
	dec, err := sqldump.NewLinkTargetDecoder(rows.Columns())
	if err != nil {
		return errs.New(errs.Schema, "store.BuildLinkTarget", err)
	}

	b.linktargetToTitle = make(map[uint64]string, 1<<20)
	for {
		raw, err := rows.Read()
		if err != nil {
			return errs.New(errs.Schema, "store.BuildLinkTarget", err)
		}
		if raw == nil {
			break
		}
		row, err := dec.Decode(raw)
		if err != nil {
			return errs.New(errs.Schema, "store.BuildLinkTarget", err)
		}
		if row.Namespace != 0 {
			continue
		}
		b.linktargetToTitle[row.ID] = row.Title
	}
	return nil
}

// BuildPageLinks runs Phase 3: iterate the PageLink SQL stream, skip rows
// whose from_namespace is not 0, resolve target_linktarget_id -> title ->
// page_id via linktargetToTitle and titleToID, and insert the resolved
// edge only when both lookups succeed. Releases linktargetToTitle once
// done, since nothing after this phase needs it.
//
// Duplicate edges are suppressed at insert time with INSERT OR IGNORE
// against the unique (from_id, to_id) index, which this phase creates
// up front; the secondary indices stay deferred until Finish.
func (b *Builder) BuildPageLinks(rows *sqldump.Reader) error {
	dec, err := sqldump.NewPageLinkDecoder(rows.Columns())
	if err != nil {
		return errs.New(errs.Schema, "store.BuildPageLinks", err)
	}
	defer func() { b.linktargetToTitle = nil }()

	if err := b.store.createEdgeIndex(); err != nil {
		return err
	}

	tx, err := b.store.db.Begin()
	if err != nil {
		return errs.New(errs.Config, "store.BuildPageLinks", err)
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO WikiLink (from_id, to_id) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return errs.New(errs.Config, "store.BuildPageLinks", err)
	}
	defer stmt.Close()

	for {
		raw, err := rows.Read()
		if err != nil {
			tx.Rollback()
			return errs.New(errs.Schema, "store.BuildPageLinks", err)
		}
		if raw == nil {
			break
		}
		row, err := dec.Decode(raw)
		if err != nil {
			tx.Rollback()
			return errs.New(errs.Schema, "store.BuildPageLinks", err)
		}
		if row.FromNamespace != 0 {
			continue
		}
		title, ok := b.linktargetToTitle[row.TargetLinkTarget]
		if !ok {
			// Unresolved linktarget id: the target table is missing
			// this indirection row entirely. Not an error; dropped
			// silently as a data-quality case.
			continue
		}
		toID, ok := b.titleToID[title]
		if !ok {
			// A red link to a title with no corresponding article
			// page. Also dropped silently.
			continue
		}
		if _, err := stmt.Exec(row.FromID, toID); err != nil {
			tx.Rollback()
			return errs.New(errs.Config, "store.BuildPageLinks", err)
		}
		b.numEdges++
	}
	if err := tx.Commit(); err != nil {
		return errs.New(errs.Config, "store.BuildPageLinks", err)
	}
	return nil
}

// Finish creates the deferred secondary indices and records Info
// provenance, the terminal step of a build.
func (b *Builder) Finish(insertionElapsed time.Duration) error {
	indexElapsed, err := b.store.CreateIndices()
	if err != nil {
		return err
	}
	return b.store.Finish(insertionElapsed, indexElapsed)
}

// Counts exposes the running tallies gathered during the build, used by
// callers that want to log a summary without an extra COUNT(*) query.
func (b *Builder) Counts() (pages, redirects, edges int64) {
	return b.numPages, b.numRedirects, b.numEdges
}
