// SPDX-License-Identifier: MIT

// Package sqldump parses the MySQL `INSERT INTO ... VALUES (...), (...);`
// statements found in MediaWiki SQL table dumps. A Reader is a lazy,
// forward-only sequence of raw string tuples; typed row decoding lives in
// rows.go on top of it. Dump files are read through a memory-mapped file
// (see mmap.go) rather than buffered whole into the heap, since a single
// pagelinks table file can run into the tens of gigabytes.
package sqldump

import (
	"bufio"
	"errors"
	"io"
)

var ErrParse = errors.New("sqldump: parse error")

// Reader parses one MediaWiki SQL dump file: a single CREATE TABLE
// statement (whose column list it records) followed by one or more INSERT
// INTO ... VALUES statements.
type Reader struct {
	lexer   sqlLexer
	columns []string
}

// NewReader wraps r (typically an io.SectionReader over a memory-mapped
// file) and advances past the CREATE TABLE statement, recording its column
// names, and past the following INSERT INTO ... VALUES keywords so that
// Read can start pulling row tuples immediately.
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{
		lexer:   sqlLexer{bufio.NewReaderSize(r, 1<<20)},
		columns: make([]string, 0, 8),
	}

	if err := rd.skipUntil(word, "CREATE"); err != nil {
		return nil, err
	}
	if err := rd.parseCreate(); err != nil {
		return nil, err
	}
	if err := rd.skipUntil(word, "INSERT"); err != nil {
		return nil, err
	}
	if err := rd.skipUntil(word, "VALUES"); err != nil {
		return nil, err
	}

	return rd, nil
}

// Columns returns the table's column names in declaration order, such as
// ["pl_from", "pl_namespace", "pl_title"].
func (r *Reader) Columns() []string { return r.columns }

// Read returns the next row tuple as raw strings (NULL becomes ""), or
// (nil, nil) once the last INSERT statement's terminating semicolon is
// reached. Dump files split their rows over many INSERT statements, so a
// semicolon is not the end of the data: the reader skips ahead to the
// next INSERT ... VALUES and keeps going until the file runs out.
func (r *Reader) Read() ([]string, error) {
	token, _, err := r.readToken()
	if err != nil {
		return nil, err
	}
	if token == semicolon {
		if err := r.skipUntil(word, "INSERT"); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}
		if err := r.skipUntil(word, "VALUES"); err != nil {
			return nil, err
		}
		token, _, err = r.readToken()
		if err != nil {
			return nil, err
		}
	}
	if token == comma {
		token, _, err = r.readToken()
		if err != nil {
			return nil, err
		}
	}
	if token != leftParen {
		return nil, ErrParse
	}

	row := make([]string, 0, len(r.columns))
	for {
		tok, txt, err := r.readToken()
		if err != nil {
			return nil, err
		}
		switch {
		case tok == number || tok == text:
			row = append(row, txt)
		case tok == word && txt == "NULL":
			row = append(row, "")
		default:
			return nil, ErrParse
		}

		tok, _, err = r.readToken()
		if err != nil {
			return nil, err
		}
		if tok == comma {
			continue
		}
		if tok == rightParen {
			break
		}
		return nil, ErrParse
	}

	return row, nil
}

func (r *Reader) parseCreate() error {
	if err := r.skipUntil(leftParen, ""); err != nil {
		return err
	}
	for {
		tok, txt, err := r.readToken()
		if err != nil {
			return err
		}
		if tok != name {
			return r.skipUntil(semicolon, "")
		}
		r.columns = append(r.columns, txt)
		if err := r.skipUntilEither(comma, rightParen); err != nil {
			return err
		}
	}
}

func (r *Reader) skipUntil(token sqlToken, tokenText string) error {
	for {
		tok, txt, err := r.lexer.read()
		if err != nil {
			return err
		}
		if tok == token && txt == tokenText {
			return nil
		}
	}
}

func (r *Reader) skipUntilEither(t1, t2 sqlToken) error {
	depth := 0
	for {
		tok, _, err := r.readToken()
		if err != nil {
			return err
		}
		if tok == leftParen {
			depth++
			continue
		}
		if tok == rightParen && depth > 0 {
			depth--
			continue
		}
		if tok == t1 || tok == t2 {
			return nil
		}
	}
}

func (r *Reader) readToken() (sqlToken, string, error) {
	for {
		tok, txt, err := r.lexer.read()
		if tok == comment && err == nil {
			continue
		}
		return tok, txt, err
	}
}
