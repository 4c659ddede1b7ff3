// SPDX-License-Identifier: MIT

// Package validate reconciles a materialized store against the live
// upstream API: for a sample of articles, it compares the persisted
// outgoing/incoming neighborhoods against what the upstream API
// currently reports, and for every divergence it tries to classify the
// difference as legitimate drift between the dump snapshot and "now"
// before ever calling it a defect.
package validate

import (
	"context"
	"time"

	"github.com/wikigraph/linkgraph/internal/errs"
	"github.com/wikigraph/linkgraph/internal/wikiapi"
	"github.com/wikigraph/linkgraph/internal/wikisite"
)

// Flag is one residual divergence that survived recency-drift
// classification: a genuine defect.
type Flag struct {
	From      string
	To        string
	Direction string // "missing-from-db" or "outdated-in-db"
}

// storeHandle is the subset of *store.Store the validator needs: title
// resolution and the persisted neighborhoods it is reconciling against
// upstream.
type storeHandle interface {
	TitleToID(title string) (uint32, bool, error)
	IDToTitle(id uint32) (string, bool, error)
	Outgoing(id uint32) ([]uint32, error)
	Incoming(id uint32) ([]uint32, error)
}

// RawDumpChecker answers whether a flagged edge is present in the raw
// SQL dump streams, the pre-validation fallback. Declared as a function
// type so the caller can supply a closure over freshly reopened
// sqldump.Readers without validate importing sqldump directly.
type RawDumpChecker func(from, to string) (bool, error)

// Validator runs the reconciliation procedure for one edition. Its
// memoization maps (revision ids, diffs, rendered links per title) are
// scoped to a single Validator instance and are not safe to share
// across concurrent validation runs.
type Validator struct {
	API         *wikiapi.Client
	Store       storeHandle
	Language    string
	DumpDate    time.Time // the dump's completion time, the "was dump-era" cutoff

	revisionAt map[string]wikiapi.Revision
	diffCache  map[string]string
	renderedAt map[int64][]string
}

// NewValidator builds a Validator for one edition.
func NewValidator(api *wikiapi.Client, store storeHandle, language string, dumpDate time.Time) *Validator {
	return &Validator{
		API:        api,
		Store:      store,
		Language:   language,
		DumpDate:   dumpDate,
		revisionAt: make(map[string]wikiapi.Revision),
		diffCache:  make(map[string]string),
		renderedAt: make(map[int64][]string),
	}
}

// Result is the outcome of validating a sample of articles.
type Result struct {
	Success          bool
	NumValidated     int
	Flags            []Flag
}

// ValidateArticles runs the full per-article procedure over titles,
// then the raw-dump fallback if any flags remain.
func (v *Validator) ValidateArticles(ctx context.Context, titles []string, fallback RawDumpChecker) (Result, error) {
	var flags []Flag
	for _, title := range titles {
		title = wikisite.NormalizeTitle(v.Language, title)
		pageFlags, err := v.validateOne(ctx, title)
		if err != nil {
			return Result{}, err
		}
		flags = append(flags, pageFlags...)
	}

	if len(flags) > 0 && fallback != nil {
		stillFlagged, err := v.preValidate(flags, fallback)
		if err != nil {
			return Result{}, err
		}
		flags = stillFlagged
	}

	return Result{Success: len(flags) == 0, NumValidated: len(titles), Flags: flags}, nil
}

// validateOne runs the reconciliation ladder for a single article
// title: resolve it, fetch both upstream neighborhoods, read both
// persisted neighborhoods, and classify every divergence.
func (v *Validator) validateOne(ctx context.Context, title string) ([]Flag, error) {
	pageID, ok, err := v.Store.TitleToID(title)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Not in the store at all: nothing to reconcile for this
		// sample draw. Not a defect; the caller draws a fresh sample.
		return nil, nil
	}

	upstreamOut, err := v.API.OutgoingLinks(ctx, title)
	if err != nil {
		return nil, errs.New(errs.Schema, "validate.validateOne", err)
	}
	upstreamIn, err := v.API.IncomingLinks(ctx, title)
	if err != nil {
		return nil, errs.New(errs.Schema, "validate.validateOne", err)
	}
	// The API reports titles with spaces; the store keeps the dump's
	// canonical underscore form. Normalize before any set comparison.
	upstreamOut = v.normalizeAll(upstreamOut)
	upstreamIn = v.normalizeAll(upstreamIn)

	dbOutIDs, err := v.Store.Outgoing(pageID)
	if err != nil {
		return nil, err
	}
	dbInIDs, err := v.Store.Incoming(pageID)
	if err != nil {
		return nil, err
	}
	dbOut, err := v.titles(dbOutIDs)
	if err != nil {
		return nil, err
	}
	dbIn, err := v.titles(dbInIDs)
	if err != nil {
		return nil, err
	}

	var flags []Flag
	for _, missing := range symmetricDifference(upstreamOut, dbOut) {
		tolerated, err := v.classifyOutgoing(ctx, title, missing.value, missing.upstreamHas)
		if err != nil {
			return nil, err
		}
		if !tolerated {
			if missing.upstreamHas {
				flags = append(flags, Flag{From: title, To: missing.value, Direction: "missing-from-db"})
			} else {
				flags = append(flags, Flag{From: title, To: missing.value, Direction: "outdated-in-db"})
			}
		}
	}
	for _, missing := range symmetricDifference(upstreamIn, dbIn) {
		tolerated, err := v.classifyIncoming(ctx, title, missing.value, missing.upstreamHas)
		if err != nil {
			return nil, err
		}
		if !tolerated {
			if missing.upstreamHas {
				flags = append(flags, Flag{From: missing.value, To: title, Direction: "missing-from-db"})
			} else {
				flags = append(flags, Flag{From: missing.value, To: title, Direction: "outdated-in-db"})
			}
		}
	}
	return flags, nil
}

func (v *Validator) normalizeAll(titles []string) []string {
	out := make([]string, len(titles))
	for i, t := range titles {
		out[i] = wikisite.NormalizeTitle(v.Language, t)
	}
	return out
}

func (v *Validator) titles(ids []uint32) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		title, ok, err := v.Store.IDToTitle(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, title)
		}
	}
	return out, nil
}

type diffItem struct {
	value       string
	upstreamHas bool // true = missing-from-db, false = outdated-in-db
}

// symmetricDifference returns the titles present in exactly one of
// upstream or db, tagged with which side has them.
func symmetricDifference(upstream, db []string) []diffItem {
	upstreamSet := make(map[string]bool, len(upstream))
	for _, t := range upstream {
		upstreamSet[t] = true
	}
	dbSet := make(map[string]bool, len(db))
	for _, t := range db {
		dbSet[t] = true
	}
	var out []diffItem
	for t := range upstreamSet {
		if !dbSet[t] {
			out = append(out, diffItem{value: t, upstreamHas: true})
		}
	}
	for t := range dbSet {
		if !upstreamSet[t] {
			out = append(out, diffItem{value: t, upstreamHas: false})
		}
	}
	return out
}

// classifyOutgoing classifies a from->to divergence on the "outgoing"
// side (from is the article being validated). upstreamHas distinguishes
// missing-from-db (true) from outdated-in-db (false). Both consult the
// diff between from's dump-era revision and now first; past that, the
// rendered dump-era page decides, with opposite polarity per direction:
// a link missing from the db that the dump-era render never contained
// was simply added after the snapshot (tolerated), while one the render
// does contain should have been ingested (defect). For a link only the
// db has, the render containing it confirms it was real at dump time
// (tolerated); a link in neither the diff nor the render is a defect.
func (v *Validator) classifyOutgoing(ctx context.Context, from, to string, upstreamHas bool) (tolerated bool, err error) {
	diff, err := v.diffSinceDump(ctx, from)
	if err != nil {
		return false, err
	}
	if wikisite.ContainsFold(diff, to) {
		return true, nil
	}
	rendered, err := v.checkRenderedAtDump(ctx, from, to)
	if err != nil {
		return false, err
	}
	if upstreamHas {
		return !rendered, nil
	}
	return rendered, nil
}

// classifyIncoming classifies a from->to divergence on the "incoming"
// side (to is the article being validated; from is the other endpoint).
// Additionally tolerates the case where from itself was created after
// the dump date: a page that did not exist at snapshot time cannot have
// contributed an incoming link to the dump.
func (v *Validator) classifyIncoming(ctx context.Context, to, from string, upstreamHas bool) (tolerated bool, err error) {
	if upstreamHas {
		created, err := v.pageCreatedAfterDump(ctx, from)
		if err != nil {
			return false, err
		}
		if created {
			return true, nil
		}
	}
	return v.classifyOutgoing(ctx, from, to, upstreamHas)
}

// diffSinceDump returns (memoized) the upstream diff of title between
// the revision that was current at dump completion time and now.
func (v *Validator) diffSinceDump(ctx context.Context, title string) (string, error) {
	if cached, ok := v.diffCache[title]; ok {
		return cached, nil
	}
	rev, ok, err := v.revisionAtDump(ctx, title)
	if err != nil {
		return "", err
	}
	if !ok {
		v.diffCache[title] = ""
		return "", nil
	}
	diff, err := v.API.CompareDiff(ctx, rev.RevID, 0)
	if err != nil {
		return "", err
	}
	v.diffCache[title] = diff
	return diff, nil
}

func (v *Validator) revisionAtDump(ctx context.Context, title string) (wikiapi.Revision, bool, error) {
	if rev, ok := v.revisionAt[title]; ok {
		return rev, true, nil
	}
	rev, ok, err := v.API.RevisionAt(ctx, title, v.DumpDate.Format(time.RFC3339))
	if err != nil {
		return wikiapi.Revision{}, false, err
	}
	if ok {
		v.revisionAt[title] = rev
	}
	return rev, ok, nil
}

// checkRenderedAtDump fetches (memoized) the rendered links of from's
// dump-era revision and reports whether to appears there, catching
// template-generated links a content diff never shows.
func (v *Validator) checkRenderedAtDump(ctx context.Context, from, to string) (bool, error) {
	rev, ok, err := v.revisionAtDump(ctx, from)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	links, ok := v.renderedAt[rev.RevID]
	if !ok {
		links, err = v.API.RenderedLinks(ctx, rev.RevID)
		if err != nil {
			return false, err
		}
		v.renderedAt[rev.RevID] = links
	}
	for _, l := range links {
		if l == to {
			return true, nil
		}
	}
	return false, nil
}

// pageCreatedAfterDump reports whether title's earliest revision is
// newer than the dump's completion time.
func (v *Validator) pageCreatedAfterDump(ctx context.Context, title string) (bool, error) {
	first, ok, err := v.API.FirstRevision(ctx, title)
	if err != nil || !ok {
		return false, nil
	}
	created, err := time.Parse(time.RFC3339, first.Timestamp)
	if err != nil {
		return false, nil
	}
	return created.After(v.DumpDate), nil
}

// preValidate checks every flagged edge against the raw pagelinks and
// linktarget dumps. A flag present in the raw dump means the builder is
// not at fault (the dumps themselves lag reality) and is dropped; flags
// absent from the raw dump remain as genuine failures.
func (v *Validator) preValidate(flags []Flag, fallback RawDumpChecker) ([]Flag, error) {
	var remaining []Flag
	for _, f := range flags {
		inRawDump, err := fallback(f.From, f.To)
		if err != nil {
			return nil, err
		}
		if !inRawDump {
			remaining = append(remaining, f)
		}
	}
	return remaining, nil
}
