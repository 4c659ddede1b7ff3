// SPDX-License-Identifier: MIT

package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wikigraph/linkgraph/internal/errs"
	"github.com/wikigraph/linkgraph/internal/sqldump"
)

func TestCreateRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enwiki_database.sqlite")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	_, err = Create(path)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.Config {
		t.Errorf("recreating existing store: got %v, want Config error", err)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.sqlite"))
	if err == nil {
		t.Error("opening a missing store succeeded")
	}
}

func TestExistsAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dewiki_database.sqlite")
	if Exists(path) {
		t.Error("Exists reported a missing file")
	}
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if !Exists(path) {
		t.Error("Exists missed a freshly created store")
	}
	if err := Remove(path); err != nil {
		t.Fatal(err)
	}
	if Exists(path) {
		t.Error("Exists reported a removed file")
	}
	// Removing twice is fine.
	if err := Remove(path); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestPath(t *testing.T) {
	got := Path("/data", "20240901", "enwiki")
	want := filepath.Join("/data", "20240901", "sqlite", "enwiki_database.sqlite")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMarkValidated(t *testing.T) {
	s := buildFixtureStore(t)
	if err := s.MarkValidated(7, 1500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	info, err := s.GetInfo()
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsValidated || info.NumPagesValidated != 7 {
		t.Errorf("info = %+v, want validated with 7 pages", info)
	}
	if info.ValidationTimeS != 1.5 {
		t.Errorf("ValidationTimeS = %f, want 1.5", info.ValidationTimeS)
	}
}

func TestEmptyEdition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwnwiki_database.sqlite")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	b := NewBuilder(s)
	// A single non-article row per table keeps the statements well
	// formed while the materialized edition stays empty.
	pr, err := sqldump.NewReader(strings.NewReader(
		"CREATE TABLE `page` (\n  `page_id` int(8) NOT NULL,\n  `page_namespace` int(11) NOT NULL,\n  `page_title` varbinary(255) NOT NULL,\n  `page_is_redirect` tinyint(1) NOT NULL\n) ENGINE=InnoDB;\n" +
			"INSERT INTO `page` VALUES (8,2,'User_page',0);\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.BuildPage(pr); err != nil {
		t.Fatal(err)
	}
	lr, err := sqldump.NewReader(strings.NewReader(
		"CREATE TABLE `linktarget` (\n  `lt_id` bigint(20) NOT NULL,\n  `lt_namespace` int(11) NOT NULL,\n  `lt_title` varbinary(255) NOT NULL\n) ENGINE=InnoDB;\n" +
			"INSERT INTO `linktarget` VALUES (1,2,'User_page');\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.BuildLinkTarget(lr); err != nil {
		t.Fatal(err)
	}
	plr, err := sqldump.NewReader(strings.NewReader(
		"CREATE TABLE `pagelinks` (\n  `pl_from` int(8) NOT NULL,\n  `pl_from_namespace` int(11) NOT NULL,\n  `pl_target_id` bigint(20) NOT NULL\n) ENGINE=InnoDB;\n" +
			"INSERT INTO `pagelinks` VALUES (8,2,1);\n"))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.BuildPageLinks(plr); err != nil {
		t.Fatal(err)
	}
	if err := b.Finish(0); err != nil {
		t.Fatal(err)
	}

	for name, query := range map[string]func() (int64, error){
		"NumPages":       s.NumPages,
		"NumLinks":       s.NumLinks,
		"NumRedirects":   s.NumRedirects,
		"NumDeadPages":   s.NumDeadPages,
		"NumOrphanPages": s.NumOrphanPages,
	} {
		n, err := query()
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s = %d, want 0", name, n)
		}
	}
	info, err := s.GetInfo()
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDone {
		t.Error("empty edition build did not set IsDone")
	}
}
