// SPDX-License-Identifier: MIT

// Package fetch is the mirror fetcher: it resolves a working mirror
// URL for a dump table file, downloads it with resumable
// skip-if-complete logic and MD5 verification, and wraps the whole
// operation in an exponential-backoff retry policy.
package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavaliercoder/grab"

	"github.com/wikigraph/linkgraph/internal/errs"
)

// MirrorList is an ordered sequence of base URLs, head of list
// preferred. The last entry is the authoritative origin, which upstream
// rate-limits more aggressively than mirrors.
type MirrorList []string

// Origin returns the authoritative last entry.
func (m MirrorList) Origin() string {
	if len(m) == 0 {
		return ""
	}
	return m[len(m)-1]
}

// OriginConcurrencyLimit is the concurrent-connection cap the origin
// mirror imposes, 2 at time of writing.
const OriginConcurrencyLimit = 2

// ResolveURL probes each mirror in order for a table file path suffix
// and returns the first URL whose HEAD indicates success. Fails only
// when no mirror responds.
func ResolveURL(ctx context.Context, client *http.Client, mirrors MirrorList, pathSuffix string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	var lastErr error
	for _, base := range mirrors {
		url := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(pathSuffix, "/")
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return url, nil
		}
		lastErr = fmt.Errorf("mirror %s responded %d", url, resp.StatusCode)
	}
	return "", errs.New(errs.Transient, "fetch.ResolveURL", lastErr)
}

// MD5Sums parses an upstream md5sums.txt manifest ("<hex> <filename>" per
// line) into a filename -> hex-digest map.
func MD5Sums(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.Transient, "fetch.MD5Sums", err)
	}
	sums := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		sums[fields[1]] = fields[0]
	}
	return sums, nil
}

// Retry policy: exponential backoff from a 2 second base, capped at
// 1 hour per wait, bounded attempts.
const (
	backoffBase    = 2 * time.Second
	backoffCap     = time.Hour
	maxAttempts    = 8
	downloadHourly = 2 * time.Hour // total deadline
)

// Download fetches url to dest, honoring a total deadline of
// downloadHourly. If dest already exists with a matching MD5 against
// the dump's authoritative manifest, the download is skipped; on
// mismatch the destination is removed and redownloaded. The whole call
// is wrapped in an outer exponential backoff retry loop.
func Download(ctx context.Context, client *grab.Client, url, dest, expectedMD5 string) error {
	if client == nil {
		client = grab.NewClient()
	}

	ctx, cancel := context.WithTimeout(ctx, downloadHourly)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errs.New(errs.Config, "fetch.Download", err)
	}

	if skip, err := skipComplete(dest, expectedMD5); err != nil {
		return err
	} else if skip {
		return nil
	}
	// A stale or mismatched partial file must not confuse grab's resume
	// logic into appending to corrupt bytes.
	os.Remove(dest)

	var lastErr error
	wait := backoffBase
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return errs.New(errs.Transient, "fetch.Download", ctx.Err())
			}
			wait *= 2
			if wait > backoffCap {
				wait = backoffCap
			}
		}

		req, err := grab.NewRequest(dest, url)
		if err != nil {
			return errs.New(errs.Config, "fetch.Download", err)
		}
		req = req.WithContext(ctx)
		resp := client.Do(req)
		if err := resp.Err(); err != nil {
			lastErr = err
			continue
		}
		if expectedMD5 != "" {
			ok, err := verifyMD5(dest, expectedMD5)
			if err != nil {
				return errs.New(errs.Integrity, "fetch.Download", err)
			}
			if !ok {
				return errs.New(errs.Integrity, "fetch.Download", fmt.Errorf("md5 mismatch for %s", dest))
			}
		}
		return nil
	}
	return errs.New(errs.Transient, "fetch.Download", fmt.Errorf("exhausted %d attempts: %w", maxAttempts, lastErr))
}

func skipComplete(dest, expectedMD5 string) (bool, error) {
	fi, err := os.Stat(dest)
	if err != nil {
		return false, nil
	}
	if fi.Size() == 0 {
		return false, nil
	}
	if expectedMD5 == "" {
		return true, nil
	}
	ok, err := verifyMD5(dest, expectedMD5)
	if err != nil {
		return false, errs.New(errs.Integrity, "fetch.skipComplete", err)
	}
	return ok, nil
}

func verifyMD5(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return strings.EqualFold(sum, expected), nil
}
