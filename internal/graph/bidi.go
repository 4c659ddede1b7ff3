// SPDX-License-Identifier: MIT

package graph

import (
	"context"
	"time"
)

// Progress is one record emitted by a bidirectional BFS run after each
// expansion step, or the final record carrying the enumerated path set.
type Progress struct {
	TotalVisited int64
	ElapsedMS    int64
	Done         bool
	Paths        [][]uint32 // page-id paths; resolved to titles by the caller
}

// side is one direction's frontier/visited bookkeeping for
// BidirectionalBFS. Frontier maps a vertex to its set of parents on
// this side, so multiple shortest paths through different parents are
// all retained.
type side struct {
	cache    *Cache
	frontier map[uint32][]uint32
	visited  map[uint32][]uint32
}

func newSide(cache *Cache, start uint32) *side {
	return &side{
		cache:    cache,
		frontier: map[uint32][]uint32{start: nil},
		visited:  map[uint32][]uint32{},
	}
}

func (s *side) size() int { return len(s.frontier) }

// expand moves the current frontier into visited and computes the next
// frontier from each vertex's cache-direction neighbors, recording every
// parent that reaches a given neighbor.
func (s *side) expand() error {
	next := make(map[uint32][]uint32)
	for v, parents := range s.frontier {
		s.visited[v] = parents
		neighbors, err := s.cache.Neighbors(v)
		if err != nil {
			return err
		}
		for _, n := range neighbors {
			if _, already := s.visited[n]; already {
				continue
			}
			next[n] = append(next[n], v)
		}
	}
	s.frontier = next
	return nil
}

// BidirectionalBFS finds all shortest paths from start to goal, streaming
// a Progress record after every expansion step onto progress. The
// channel is closed when the search finishes (found or exhausted); the
// caller is expected to range over it. Cancellation is cooperative: ctx
// is checked once per iteration, and in-flight work completes to that
// point before the goroutine exits.
func BidirectionalBFS(ctx context.Context, out, in *Cache, start, goal uint32, progress chan<- Progress) {
	defer close(progress)
	start0 := time.Now()

	if start == goal {
		progress <- Progress{TotalVisited: 1, ElapsedMS: 0, Done: true, Paths: [][]uint32{{start}}}
		return
	}

	fwd := newSide(out, start)
	bwd := newSide(in, goal)

	emit := func(done bool, paths [][]uint32) {
		total := int64(len(fwd.visited) + len(fwd.frontier) + len(bwd.visited) + len(bwd.frontier))
		progress <- Progress{
			TotalVisited: total,
			ElapsedMS:    time.Since(start0).Milliseconds(),
			Done:         done,
			Paths:        paths,
		}
	}

	for fwd.size() > 0 && bwd.size() > 0 {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Expand the smaller frontier; this amortizes the worst
		// direction
		var err error
		if fwd.size() <= bwd.size() {
			err = fwd.expand()
		} else {
			err = bwd.expand()
		}
		if err != nil {
			return
		}

		meetings := meetingPoints(fwd, bwd)
		if len(meetings) > 0 {
			paths := enumeratePaths(fwd, bwd, start, goal, meetings)
			emit(true, paths)
			return
		}
		emit(false, nil)
	}
	emit(true, nil)
}

// meetingPoints returns vertices known on both sides, either because
// both have them visited, or because one side's newest frontier lands on
// a vertex the other side has already visited (or is simultaneously
// sitting in its own frontier, for the both-frontiers-collide case).
func meetingPoints(fwd, bwd *side) []uint32 {
	var meetings []uint32
	seen := func(s *side, v uint32) bool {
		if _, ok := s.visited[v]; ok {
			return true
		}
		_, ok := s.frontier[v]
		return ok
	}
	candidates := make(map[uint32]bool)
	for v := range fwd.visited {
		candidates[v] = true
	}
	for v := range fwd.frontier {
		candidates[v] = true
	}
	for v := range candidates {
		if seen(bwd, v) {
			meetings = append(meetings, v)
		}
	}
	return meetings
}

// enumeratePaths recursively walks the forward visited/frontier table
// from each meeting point back to start, concatenated with the reversed
// backward walk from the meeting point to goal. Meeting points found in
// the same expansion step can sit at different forward depths, so the
// concatenated candidates are filtered down to the minimum length: only
// shortest paths are returned.
func enumeratePaths(fwd, bwd *side, start, goal uint32, meetings []uint32) [][]uint32 {
	var all [][]uint32
	for _, meet := range meetings {
		forwardPaths := pathsTo(fwd, start, meet)
		backwardPaths := pathsTo(bwd, goal, meet)
		for _, fp := range forwardPaths {
			for _, bp := range backwardPaths {
				// bp runs goal -> meet; reverse it to meet -> goal and
				// drop the duplicated meeting vertex before appending.
				reversed := make([]uint32, len(bp))
				for i, v := range bp {
					reversed[len(bp)-1-i] = v
				}
				full := append(append([]uint32{}, fp...), reversed[1:]...)
				all = append(all, full)
			}
		}
	}
	shortest := -1
	for _, p := range all {
		if shortest < 0 || len(p) < shortest {
			shortest = len(p)
		}
	}
	out := all[:0]
	for _, p := range all {
		if len(p) == shortest {
			out = append(out, p)
		}
	}
	return out
}

// pathsTo enumerates every path from root to v through s's
// frontier/visited parent chains, root-first.
func pathsTo(s *side, root, v uint32) [][]uint32 {
	if v == root {
		return [][]uint32{{root}}
	}
	parents, ok := s.visited[v]
	if !ok {
		parents, ok = s.frontier[v]
		if !ok {
			return nil
		}
	}
	var out [][]uint32
	for _, p := range parents {
		for _, prefix := range pathsTo(s, root, p) {
			out = append(out, append(append([]uint32{}, prefix...), v))
		}
	}
	return out
}
