// SPDX-License-Identifier: MIT

package sqldump

import (
	"fmt"
	"strconv"
)

// PageRow is one row of a MediaWiki `page` table dump.
type PageRow struct {
	ID         uint32
	Namespace  uint16
	Title      string
	IsRedirect bool
}

// LinkTargetRow is one row of a MediaWiki `linktarget` table dump: the
// indirection introduced in schema 1.43 that a `pagelinks` row points at
// instead of naming its target directly.
type LinkTargetRow struct {
	ID        uint64
	Namespace uint16
	Title     string
}

// PageLinkRow is one row of a MediaWiki `pagelinks` table dump.
type PageLinkRow struct {
	FromID          uint32
	FromNamespace   uint16
	TargetLinkTarget uint64
}

// CategoryLinkRow is one row of a MediaWiki `categorylinks` table
// dump. The graph builder's edge set comes from pagelinks only. This
// package declares the row type but has no decoder for categorylinks
// tuples.
type CategoryLinkRow struct {
	FromID uint32
	To     string
}

// columnIndex resolves a column's position within columns, so a row
// decoder never hard-codes tuple positions and instead tracks the
// dump's own CREATE TABLE column order.
type columnIndex struct {
	columns []string
	pos     map[string]int
}

func newColumnIndex(columns []string) *columnIndex {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	return &columnIndex{columns: columns, pos: pos}
}

func (c *columnIndex) mustIndex(name string) (int, error) {
	i, ok := c.pos[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing column %q", ErrParse, name)
	}
	return i, nil
}

// PageDecoder decodes raw tuples from a `page` table dump into PageRow
// values, resolving column positions once up front.
type PageDecoder struct {
	idx                              *columnIndex
	iID, iNamespace, iTitle, iRedir  int
}

func NewPageDecoder(columns []string) (*PageDecoder, error) {
	idx := newColumnIndex(columns)
	d := &PageDecoder{idx: idx}
	var err error
	if d.iID, err = idx.mustIndex("page_id"); err != nil {
		return nil, err
	}
	if d.iNamespace, err = idx.mustIndex("page_namespace"); err != nil {
		return nil, err
	}
	if d.iTitle, err = idx.mustIndex("page_title"); err != nil {
		return nil, err
	}
	if d.iRedir, err = idx.mustIndex("page_is_redirect"); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *PageDecoder) Decode(row []string) (PageRow, error) {
	id, err := strconv.ParseUint(row[d.iID], 10, 32)
	if err != nil {
		return PageRow{}, err
	}
	ns, err := strconv.ParseUint(row[d.iNamespace], 10, 16)
	if err != nil {
		return PageRow{}, err
	}
	return PageRow{
		ID:         uint32(id),
		Namespace:  uint16(ns),
		Title:      row[d.iTitle],
		IsRedirect: row[d.iRedir] == "1",
	}, nil
}

// LinkTargetDecoder decodes raw tuples from a `linktarget` table dump.
type LinkTargetDecoder struct {
	iID, iNamespace, iTitle int
}

func NewLinkTargetDecoder(columns []string) (*LinkTargetDecoder, error) {
	idx := newColumnIndex(columns)
	d := &LinkTargetDecoder{}
	var err error
	if d.iID, err = idx.mustIndex("lt_id"); err != nil {
		return nil, err
	}
	if d.iNamespace, err = idx.mustIndex("lt_namespace"); err != nil {
		return nil, err
	}
	if d.iTitle, err = idx.mustIndex("lt_title"); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *LinkTargetDecoder) Decode(row []string) (LinkTargetRow, error) {
	id, err := strconv.ParseUint(row[d.iID], 10, 64)
	if err != nil {
		return LinkTargetRow{}, err
	}
	ns, err := strconv.ParseUint(row[d.iNamespace], 10, 16)
	if err != nil {
		return LinkTargetRow{}, err
	}
	return LinkTargetRow{ID: id, Namespace: uint16(ns), Title: row[d.iTitle]}, nil
}

// PageLinkDecoder decodes raw tuples from a `pagelinks` table dump.
type PageLinkDecoder struct {
	iFrom, iFromNamespace, iTarget int
}

func NewPageLinkDecoder(columns []string) (*PageLinkDecoder, error) {
	idx := newColumnIndex(columns)
	d := &PageLinkDecoder{}
	var err error
	if d.iFrom, err = idx.mustIndex("pl_from"); err != nil {
		return nil, err
	}
	if d.iFromNamespace, err = idx.mustIndex("pl_from_namespace"); err != nil {
		return nil, err
	}
	if d.iTarget, err = idx.mustIndex("pl_target_id"); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *PageLinkDecoder) Decode(row []string) (PageLinkRow, error) {
	from, err := strconv.ParseUint(row[d.iFrom], 10, 32)
	if err != nil {
		return PageLinkRow{}, err
	}
	ns, err := strconv.ParseUint(row[d.iFromNamespace], 10, 16)
	if err != nil {
		return PageLinkRow{}, err
	}
	target, err := strconv.ParseUint(row[d.iTarget], 10, 64)
	if err != nil {
		return PageLinkRow{}, err
	}
	return PageLinkRow{
		FromID:           uint32(from),
		FromNamespace:    uint16(ns),
		TargetLinkTarget: target,
	}, nil
}
