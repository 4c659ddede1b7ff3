// SPDX-License-Identifier: MIT

package wikisite

import (
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
)

// Artifact is one dump file listed on a per-dump Wikimedia dumps index
// page: "<li class='file'> per artifact carrying a
// human-readable size".
type Artifact struct {
	Name  string
	Bytes uint64
}

// fileListItem matches one <li class="file">...</li> entry. The real
// Wikimedia dump pages wrap the filename in an <a> tag followed by the
// size, e.g. `<li class="file"><a href="enwiki-...gz">
// enwiki-20240901-page.sql.gz</a> 412.3 MB</li>`.
var fileListItem = regexp.MustCompile(`(?is)<li class="file">.*?>([^<>]+\.sql\.gz)</a>\s*([0-9.]+\s*[KMGT]?B)\s*</li>`)

// ParseFileList extracts every artifact and its parsed byte size from
// a per-dump index page's HTML, using the decimal byte-size grammar
// (B/KB/MB/GB/TB). Entries whose size fails to parse are skipped rather
// than aborting the whole listing, since a single malformed entry
// should not block catalog discovery for every other table.
func ParseFileList(html string) []Artifact {
	var out []Artifact
	for _, m := range fileListItem.FindAllStringSubmatch(html, -1) {
		name := strings.TrimSpace(m[1])
		sizeText := strings.TrimSpace(m[2])
		n, err := humanize.ParseBytes(sizeText)
		if err != nil {
			continue
		}
		out = append(out, Artifact{Name: name, Bytes: n})
	}
	return out
}
