// SPDX-License-Identifier: MIT

package graph

import (
	"context"
	"slices"
	"testing"
)

func runBidi(t *testing.T, edges [][2]uint32, start, goal uint32) []Progress {
	t.Helper()
	store := newFakeStore(edges)
	out := Empty(store, Outgoing, nil)
	in := Empty(store, Incoming, nil)

	progress := make(chan Progress)
	go BidirectionalBFS(context.Background(), out, in, start, goal, progress)

	var records []Progress
	for p := range progress {
		records = append(records, p)
	}
	return records
}

func TestBidirectionalBFSFindsPath(t *testing.T) {
	records := runBidi(t, diamond, 1, 4)
	if len(records) == 0 {
		t.Fatal("no progress records")
	}
	final := records[len(records)-1]
	if !final.Done {
		t.Fatal("last record not final")
	}
	if len(final.Paths) != 1 || !slices.Equal(final.Paths[0], []uint32{1, 3, 4}) {
		t.Errorf("paths = %v, want [[1 3 4]]", final.Paths)
	}
	for _, p := range records[:len(records)-1] {
		if p.Done || p.Paths != nil {
			t.Errorf("intermediate record carries final state: %+v", p)
		}
	}
}

func TestBidirectionalBFSNoBackwardPath(t *testing.T) {
	records := runBidi(t, diamond, 4, 1)
	final := records[len(records)-1]
	if !final.Done || len(final.Paths) != 0 {
		t.Errorf("want done with zero paths, got %+v", final)
	}
}

func TestBidirectionalBFSStartEqualsGoal(t *testing.T) {
	records := runBidi(t, diamond, 2, 2)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	final := records[0]
	if !final.Done || len(final.Paths) != 1 || !slices.Equal(final.Paths[0], []uint32{2}) {
		t.Errorf("got %+v, want single-vertex path", final)
	}
}

func TestBidirectionalBFSAllShortestPaths(t *testing.T) {
	// Two distinct shortest paths 1->2->4 and 1->3->4.
	edges := [][2]uint32{{1, 2}, {1, 3}, {2, 4}, {3, 4}}
	records := runBidi(t, edges, 1, 4)
	final := records[len(records)-1]
	if len(final.Paths) != 2 {
		t.Fatalf("got %d paths, want 2: %v", len(final.Paths), final.Paths)
	}
	for _, p := range final.Paths {
		if len(p) != 3 || p[0] != 1 || p[2] != 4 {
			t.Errorf("bad path %v", p)
		}
	}
}

func TestBidirectionalBFSOnlyMinimumLength(t *testing.T) {
	// Ties expand the forward side, so its second step reaches 3, 4 and
	// the goal 9 together; the longer route 1->2->4->9 must not be
	// reported.
	edges := [][2]uint32{{1, 2}, {2, 3}, {2, 4}, {2, 9}, {4, 9}}
	records := runBidi(t, edges, 1, 9)
	final := records[len(records)-1]
	if len(final.Paths) == 0 {
		t.Fatal("no paths found")
	}
	for _, p := range final.Paths {
		if len(p) != 3 {
			t.Errorf("path %v has length %d, want 3", p, len(p))
		}
	}
	if !slices.ContainsFunc(final.Paths, func(p []uint32) bool {
		return slices.Equal(p, []uint32{1, 2, 9})
	}) {
		t.Errorf("paths = %v, want [1 2 9] among them", final.Paths)
	}
}

func TestBidirectionalBFSCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newFakeStore(diamond)
	out := Empty(store, Outgoing, nil)
	in := Empty(store, Incoming, nil)
	progress := make(chan Progress)
	go BidirectionalBFS(ctx, out, in, 1, 4, progress)

	for p := range progress {
		if p.Done {
			t.Error("cancelled run emitted a final record")
		}
	}
}
