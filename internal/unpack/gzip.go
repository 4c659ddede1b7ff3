// SPDX-License-Identifier: MIT

// Package unpack streams gzip decompression from a downloaded dump
// table file to a sibling file with its ".gz" extension stripped. The
// decompressed file is persisted so the builder can memory-map it.
package unpack

import (
	"compress/gzip"
	"io"
	"os"
	"strings"
	"time"

	"github.com/wikigraph/linkgraph/internal/errs"
)

// backoff is the short fixed delay between decompression retries,
// distinct from the mirror fetcher's exponential policy. Variables so
// tests can shrink them.
var (
	backoff     = 5 * time.Second
	maxAttempts = 3
)

// DestPath strips a trailing ".gz" from src, the unpacker's naming
// convention.
func DestPath(src string) string {
	return strings.TrimSuffix(src, ".gz")
}

// Unpack decompresses src to its sibling DestPath(src). If the
// destination already exists with non-zero size and alwaysUnpack is
// false, the call is a no-op. Decompression is retried up to
// maxAttempts times with a short fixed backoff between attempts; slow
// filesystems occasionally produce a premature EOF that succeeds on
// retry. deleteSource, if true, removes src once unpacking succeeds.
func Unpack(src string, alwaysUnpack, deleteSource bool) error {
	dest := DestPath(src)
	if !alwaysUnpack {
		if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
			return nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
		}
		if err := unpackOnce(src, dest); err != nil {
			lastErr = err
			continue
		}
		if deleteSource {
			if err := os.Remove(src); err != nil {
				return errs.New(errs.Decompression, "unpack.Unpack", err)
			}
		}
		return nil
	}
	return errs.New(errs.Decompression, "unpack.Unpack", lastErr)
}

func unpackOnce(src, dest string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gz.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(out, gz); err != nil {
		out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
