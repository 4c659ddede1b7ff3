// SPDX-License-Identifier: MIT

// Package graph holds the link cache and the BFS kernels that run over
// it: directed single-source BFS, undirected BFS for weakly-connected
// components, bidirectional BFS for shortest paths, and the parallel
// sample harness.
package graph

// Direction selects which adjacency a Cache or BFS kernel walks.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// neighborSource is the subset of *store.Store a Cache falls back to
// on a miss. Declared as an interface here rather than importing store
// directly, so unit tests can substitute a fake without touching
// SQLite.
type neighborSource interface {
	Outgoing(id uint32) ([]uint32, error)
	Incoming(id uint32) ([]uint32, error)
	TopDegreeIDs(direction string, k int) ([]uint32, error)
	AllPageIDs() ([]uint32, error)
}

// Cache is an immutable, in-memory adjacency map from page id to
// neighbor list for one direction. It is built once (Empty, PartialTopK,
// PartialIDs, or Full) and never mutated afterward, so reads need no
// synchronization.
type Cache struct {
	direction Direction
	store     neighborSource
	adjacency map[uint32][]uint32
	metrics   *Metrics
}

// Empty builds a Cache that always falls through to the store: every
// neighbor lookup is a live query, with no preloading cost.
func Empty(store neighborSource, direction Direction, metrics *Metrics) *Cache {
	return &Cache{direction: direction, store: store, metrics: metrics}
}

// PartialTopK preloads the k vertices with the highest degree in
// direction; lookups for any other vertex fall through to the store.
func PartialTopK(store neighborSource, direction Direction, k int, metrics *Metrics) (*Cache, error) {
	ids, err := store.TopDegreeIDs(direction.String(), k)
	if err != nil {
		return nil, err
	}
	c := &Cache{direction: direction, store: store, adjacency: make(map[uint32][]uint32, len(ids)), metrics: metrics}
	for _, id := range ids {
		neighbors, err := c.fetch(id)
		if err != nil {
			return nil, err
		}
		c.adjacency[id] = neighbors
	}
	return c, nil
}

// PartialIDs preloads exactly the given vertices, for callers that rank
// vertices by something other than degree (the shortest-path service
// preloads last month's most-viewed articles this way); lookups for any
// other vertex fall through to the store.
func PartialIDs(store neighborSource, direction Direction, ids []uint32, metrics *Metrics) (*Cache, error) {
	c := &Cache{direction: direction, store: store, adjacency: make(map[uint32][]uint32, len(ids)), metrics: metrics}
	for _, id := range ids {
		neighbors, err := c.fetch(id)
		if err != nil {
			return nil, err
		}
		c.adjacency[id] = neighbors
	}
	return c, nil
}

// Full preloads every vertex's neighbor list for direction.
func Full(store neighborSource, direction Direction, metrics *Metrics) (*Cache, error) {
	ids, err := store.AllPageIDs()
	if err != nil {
		return nil, err
	}
	c := &Cache{direction: direction, store: store, adjacency: make(map[uint32][]uint32, len(ids)), metrics: metrics}
	for _, id := range ids {
		neighbors, err := c.fetch(id)
		if err != nil {
			return nil, err
		}
		c.adjacency[id] = neighbors
	}
	return c, nil
}

func (c *Cache) fetch(id uint32) ([]uint32, error) {
	if c.direction == Incoming {
		return c.store.Incoming(id)
	}
	return c.store.Outgoing(id)
}

// Neighbors returns id's neighbor sequence in the cache's direction,
// reading from the preloaded map when present and falling through to
// the store otherwise. Hits and misses are counted on Metrics, for
// diagnostics only.
func (c *Cache) Neighbors(id uint32) ([]uint32, error) {
	if c.adjacency != nil {
		if neighbors, ok := c.adjacency[id]; ok {
			c.metrics.RecordCacheHit(c.direction)
			return neighbors, nil
		}
	}
	c.metrics.RecordCacheMiss(c.direction)
	return c.fetch(id)
}

// Direction reports which adjacency this cache serves.
func (c *Cache) Direction() Direction { return c.direction }
