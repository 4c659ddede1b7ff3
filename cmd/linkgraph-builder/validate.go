// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/wikigraph/linkgraph/internal/sqldump"
	"github.com/wikigraph/linkgraph/internal/store"
	"github.com/wikigraph/linkgraph/internal/unpack"
	"github.com/wikigraph/linkgraph/internal/validate"
	"github.com/wikigraph/linkgraph/internal/wikiapi"
	"github.com/wikigraph/linkgraph/internal/wikisite"
)

// runValidation reconciles a freshly built store against the live
// upstream API for a random sample of articles, then records the outcome
// on the store's Info row. Runs as the pipeline's PostBuild hook so the
// raw dumps are still on disk for the pre-validation fallback.
func runValidation(ctx context.Context, wiki string, s *store.Store, storeBase, date string, sampleSize int) error {
	ed := wikisite.NewEdition(wiki, storeBase)
	api, err := wikiapi.NewClient(nil, ed.Language)
	if err != nil {
		return err
	}

	dumpTime, err := time.Parse("20060102", date)
	if err != nil {
		return err
	}

	titles, err := api.RandomArticles(ctx, sampleSize)
	if err != nil {
		return err
	}

	v := validate.NewValidator(api, s, ed.Language, dumpTime)
	checker := newRawDumpChecker(storeBase, date, wiki)

	start := time.Now()
	result, err := v.ValidateArticles(ctx, titles, checker.contains)
	if err != nil {
		return err
	}
	if !result.Success {
		for _, f := range result.Flags {
			logger.Printf("%s: validation flag (%s): %s -> %s", wiki, f.Direction, f.From, f.To)
		}
		return fmt.Errorf("%s: validation failed with %d residual flags", wiki, len(result.Flags))
	}

	if err := s.MarkValidated(int64(result.NumValidated), time.Since(start)); err != nil {
		return err
	}
	logger.Printf("%s: validated %d articles", wiki, result.NumValidated)
	return nil
}

// rawDumpChecker lazily re-reads the raw page/linktarget/pagelinks dumps
// from disk and answers whether a flagged (from, to) title edge appears
// there, the pre-validation fallback of the validator. The edge set is
// built once on first use and reused for every remaining flag.
type rawDumpChecker struct {
	storeBase string
	date      string
	wiki      string

	loaded bool
	edges  map[string]bool
}

func newRawDumpChecker(storeBase, date, wiki string) *rawDumpChecker {
	return &rawDumpChecker{storeBase: storeBase, date: date, wiki: wiki}
}

func (c *rawDumpChecker) contains(from, to string) (bool, error) {
	if !c.loaded {
		if err := c.load(); err != nil {
			return false, err
		}
		c.loaded = true
	}
	return c.edges[from+"\x00"+to], nil
}

func (c *rawDumpChecker) load() error {
	idToTitle, err := c.pageTitles()
	if err != nil {
		return err
	}
	ltToTitle, err := c.linktargetTitles()
	if err != nil {
		return err
	}

	reader, closeFn, err := c.open("pagelinks")
	if err != nil {
		return err
	}
	defer closeFn()
	dec, err := sqldump.NewPageLinkDecoder(reader.Columns())
	if err != nil {
		return err
	}

	c.edges = make(map[string]bool)
	for {
		raw, err := reader.Read()
		if err != nil {
			return err
		}
		if raw == nil {
			break
		}
		row, err := dec.Decode(raw)
		if err != nil {
			return err
		}
		if row.FromNamespace != 0 {
			continue
		}
		fromTitle, ok := idToTitle[row.FromID]
		if !ok {
			continue
		}
		toTitle, ok := ltToTitle[row.TargetLinkTarget]
		if !ok {
			continue
		}
		c.edges[fromTitle+"\x00"+toTitle] = true
	}
	return nil
}

func (c *rawDumpChecker) pageTitles() (map[uint32]string, error) {
	reader, closeFn, err := c.open("page")
	if err != nil {
		return nil, err
	}
	defer closeFn()
	dec, err := sqldump.NewPageDecoder(reader.Columns())
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]string)
	for {
		raw, err := reader.Read()
		if err != nil {
			return nil, err
		}
		if raw == nil {
			break
		}
		row, err := dec.Decode(raw)
		if err != nil {
			return nil, err
		}
		if row.Namespace == 0 {
			out[row.ID] = row.Title
		}
	}
	return out, nil
}

func (c *rawDumpChecker) linktargetTitles() (map[uint64]string, error) {
	reader, closeFn, err := c.open("linktarget")
	if err != nil {
		return nil, err
	}
	defer closeFn()
	dec, err := sqldump.NewLinkTargetDecoder(reader.Columns())
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]string)
	for {
		raw, err := reader.Read()
		if err != nil {
			return nil, err
		}
		if raw == nil {
			break
		}
		row, err := dec.Decode(raw)
		if err != nil {
			return nil, err
		}
		if row.Namespace == 0 {
			out[row.ID] = row.Title
		}
	}
	return out, nil
}

func (c *rawDumpChecker) open(table string) (*sqldump.Reader, func(), error) {
	gz := filepath.Join(c.storeBase, c.date, "downloads",
		fmt.Sprintf("%s-%s-%s.sql.gz", c.wiki, c.date, table))
	mapped, err := sqldump.OpenMapped(unpack.DestPath(gz))
	if err != nil {
		return nil, nil, err
	}
	reader, err := sqldump.NewReader(mapped.Reader())
	if err != nil {
		mapped.Close()
		return nil, nil, err
	}
	return reader, func() { mapped.Close() }, nil
}
