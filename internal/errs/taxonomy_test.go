// SPDX-License-Identifier: MIT

package errs

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestNew(t *testing.T) {
	if New(Transient, "op", nil) != nil {
		t.Error("New with nil error should be nil")
	}

	err := New(Integrity, "fetch.Download", errors.New("md5 mismatch"))
	if err == nil {
		t.Fatal("nil")
	}
	want := "fetch.Download: integrity: md5 mismatch"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestIs(t *testing.T) {
	err := New(Config, "store.Open", errors.New("missing"))
	if !Is(err, Config) {
		t.Error("Is(Config) = false")
	}
	if Is(err, Transient) {
		t.Error("Is(Transient) = true")
	}
	if Is(errors.New("plain"), Config) {
		t.Error("plain error classified")
	}

	// Classification survives wrapping.
	wrapped := fmt.Errorf("outer: %w", err)
	if !Is(wrapped, Config) {
		t.Error("Is lost through wrapping")
	}
}

func TestUnwrap(t *testing.T) {
	err := New(Decompression, "unpack", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("underlying error not reachable through Unwrap")
	}
	var e *Error
	if !errors.As(err, &e) || e.Op != "unpack" {
		t.Errorf("errors.As failed: %+v", e)
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{
		Transient:     "transient",
		Integrity:     "integrity",
		Decompression: "decompression",
		Schema:        "schema",
		DataQuality:   "data-quality",
		Config:        "config",
		Invariant:     "invariant",
		Kind(99):      "unknown",
	} {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
