// SPDX-License-Identifier: MIT

package sqldump

import (
	"io"

	"golang.org/x/exp/mmap"
)

// MappedFile is a memory-mapped dump table file. Opening it does not read
// its contents into the heap; pages are faulted in by the kernel as the
// Reader's lexer walks over them, which is what keeps a multi-gigabyte
// pagelinks.sql file from needing a matching amount of RAM.
type MappedFile struct {
	r *mmap.ReaderAt
}

// OpenMapped memory-maps the dump file at path for reading.
func OpenMapped(path string) (*MappedFile, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return &MappedFile{r: r}, nil
}

// Reader returns an io.Reader over the full extent of the mapped file,
// suitable for passing to NewReader.
func (m *MappedFile) Reader() io.Reader {
	return io.NewSectionReader(m.r, 0, int64(m.r.Len()))
}

// Len returns the size of the mapped file in bytes.
func (m *MappedFile) Len() int64 { return int64(m.r.Len()) }

// Close unmaps the file.
func (m *MappedFile) Close() error { return m.r.Close() }
