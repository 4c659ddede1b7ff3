// SPDX-License-Identifier: MIT

package graph

// Result is the output of a single-source BFS run: the visited set, a
// depth histogram, the predecessor map needed to reconstruct shortest
// paths, and the deepest vertex discovered. All fields are
// per-invocation and discarded once the caller is done with them.
type Result struct {
	Visited      map[uint32]bool
	DepthOf      map[uint32]int
	Histogram    map[int]int64 // depth -> count of vertices first discovered at that depth
	Predecessor  map[uint32]uint32
	TotalVisited int64
	DeepestID    uint32
	HasDeepest   bool
	LenDeepestSP int
}

// BFS runs a single-source directed breadth-first search from start
// over cache. goal, if hasGoal is set and the vertex is reached, stops
// the search early. maxDepth, if >= 0, bounds exploration: neighbors at
// depth+1 > maxDepth are not enqueued. Pass maxDepth = -1 for unbounded.
//
// Ties for "deepest discovered vertex" are broken by
// first-discovery-wins: a later discovery at an equal depth never
// overwrites DeepestID.
func BFS(cache *Cache, start uint32, goal uint32, hasGoal bool, maxDepth int) (Result, error) {
	res := Result{
		Visited:     make(map[uint32]bool),
		DepthOf:     make(map[uint32]int),
		Histogram:   make(map[int]int64),
		Predecessor: make(map[uint32]uint32),
	}

	type item struct {
		id    uint32
		depth int
	}
	queue := []item{{start, 0}}
	res.Visited[start] = true
	res.DepthOf[start] = 0
	res.TotalVisited = 1
	res.DeepestID = start
	res.HasDeepest = true
	res.LenDeepestSP = 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if hasGoal && cur.id == goal {
			break
		}

		if maxDepth >= 0 && cur.depth+1 > maxDepth {
			continue
		}

		neighbors, err := cache.Neighbors(cur.id)
		if err != nil {
			return Result{}, err
		}
		for _, n := range neighbors {
			if res.Visited[n] {
				continue
			}
			depth := cur.depth + 1
			res.Visited[n] = true
			res.DepthOf[n] = depth
			res.Predecessor[n] = cur.id
			res.Histogram[depth]++
			res.TotalVisited++
			if depth > res.DepthOf[res.DeepestID] {
				res.DeepestID = n
				res.LenDeepestSP = depth
			}
			queue = append(queue, item{n, depth})
		}
	}

	return res, nil
}

// ReconstructPath walks predecessor backward from id to the BFS source,
// returning the path source-first. Used by the "invariant" property test
// in that checks len(path) == LenDeepestSP + 1.
func ReconstructPath(predecessor map[uint32]uint32, source, id uint32) []uint32 {
	path := []uint32{id}
	cur := id
	for cur != source {
		parent, ok := predecessor[cur]
		if !ok {
			break
		}
		path = append(path, parent)
		cur = parent
	}
	// reverse in place to source-first order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// UndirectedBFS runs the frontier loop describes for
// weakly-connected-component detection: each pop extends the frontier
// with both outgoing neighbors (from out) and incoming neighbors (from
// in), so the result is the reachable set in the undirected projection
// of the edge set.
func UndirectedBFS(out, in *Cache, start uint32) (map[uint32]bool, error) {
	visited := map[uint32]bool{start: true}
	queue := []uint32{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		outNeighbors, err := out.Neighbors(cur)
		if err != nil {
			return nil, err
		}
		inNeighbors, err := in.Neighbors(cur)
		if err != nil {
			return nil, err
		}
		for _, n := range outNeighbors {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
		for _, n := range inNeighbors {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return visited, nil
}

// FilterRedirects narrows a vertex set to non-redirect pages
// invariant 5: "Redirect pages... are filtered out of weakly-connected-
// component output." isRedirect is typically store.IsRedirect or a
// preloaded set; declared as a function so callers can batch the lookup.
func FilterRedirects(vertices map[uint32]bool, isRedirect func(uint32) (bool, error)) (map[uint32]bool, error) {
	out := make(map[uint32]bool, len(vertices))
	for id := range vertices {
		redirect, err := isRedirect(id)
		if err != nil {
			return nil, err
		}
		if !redirect {
			out[id] = true
		}
	}
	return out, nil
}

// WeaklyConnectedComponents sweeps every vertex in ids, growing connected
// components via UndirectedBFS, and returns them as a slice of vertex
// sets with redirects already filtered out.
func WeaklyConnectedComponents(out, in *Cache, ids []uint32, isRedirect func(uint32) (bool, error)) ([]map[uint32]bool, error) {
	seen := make(map[uint32]bool, len(ids))
	var components []map[uint32]bool
	for _, id := range ids {
		if seen[id] {
			continue
		}
		component, err := UndirectedBFS(out, in, id)
		if err != nil {
			return nil, err
		}
		for v := range component {
			seen[v] = true
		}
		filtered, err := FilterRedirects(component, isRedirect)
		if err != nil {
			return nil, err
		}
		if len(filtered) > 0 {
			components = append(components, filtered)
		}
	}
	return components, nil
}
