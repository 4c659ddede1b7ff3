// SPDX-License-Identifier: MIT

package wikisite

import (
	"bytes"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// caser is stateless and safe to use concurrently, per the package doc on
// cases.Fold.
var caser = cases.Fold()

// NormalizeTitle converts title to MediaWiki's canonical form: NFC-
// normalized, each space or control character replaced by its own
// underscore (runs are not merged), first letter
// uppercased. Turkish and Azeri uppercase the dotted i differently, so
// editions whose language prefix is "tr" or "az" use the Turkish case
// tables for that first letter. Title comparisons against any external
// source (the upstream API, an HTTP query parameter) must go through
// this function first; the dump files already carry titles in this form,
// so the store never needs it on its own rows.
func NormalizeTitle(language, title string) string {
	var buf bytes.Buffer
	var it norm.Iter
	it.InitString(norm.NFC, title)
	for !it.Done() {
		c := it.Next()
		if c[0] > 0x20 {
			buf.Write(c)
		} else {
			buf.WriteByte('_')
		}
	}

	out := buf.String()
	runes := []rune(out)
	if len(runes) > 0 {
		if language == "tr" || language == "az" {
			runes[0] = unicode.TurkishCase.ToUpper(runes[0])
		} else {
			runes[0] = unicode.ToUpper(runes[0])
		}
		out = string(runes)
	}
	return out
}

// ContainsFold reports whether haystack contains needle under Unicode
// case folding, used when scanning upstream diff fragments for a title
// whose case the diff markup may not preserve.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(caser.String(haystack), caser.String(needle))
}
