// SPDX-License-Identifier: MIT

// Package errs gives the link graph toolkit's failure modes a small, closed
// taxonomy instead of ad-hoc error strings, so retry and propagation logic
// can switch on a Kind rather than on message content.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way the toolkit's pipeline needs to react to
// it: by retrying, by failing a single call, or by aborting outright.
type Kind int

const (
	// Transient covers HTTP timeouts, 5xx, and truncated bodies. Retried
	// with exponential backoff up to a bounded attempt count.
	Transient Kind = iota
	// Integrity covers an MD5 mismatch against the upstream manifest.
	// Redownloaded once, then failed hard.
	Integrity
	// Decompression covers unexpected EOF or a corrupt gzip frame.
	// Retried with fixed backoff.
	Decompression
	// Schema covers an upstream response missing an expected field.
	// The single call fails; the caller propagates it as a warning.
	Schema
	// DataQuality covers an unresolved linktarget or unknown title.
	// Dropped silently at insertion time; never surfaced as an error,
	// but named here so callers that choose to log it can tag it.
	DataQuality
	// Config covers a missing environment variable, invalid store path,
	// or unknown wiki identifier. Fails before scheduling.
	Config
	// Invariant covers an assertion failure: a BFS deepest-path length
	// that disagrees with the reconstructed path. Indicates a bug.
	Invariant
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Integrity:
		return "integrity"
	case Decompression:
		return "decompression"
	case Schema:
		return "schema"
	case DataQuality:
		return "data-quality"
	case Config:
		return "config"
	case Invariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind so that callers can dispatch
// on the classification without parsing the message.
type Error struct {
	Kind Kind
	Op   string // e.g. "fetch.Download", "store.InsertEdge"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and the operation that produced it. Returns nil
// if err is nil, so it can be used unconditionally at a function's return.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
