// SPDX-License-Identifier: MIT

package graph

import (
	"math"
	"math/rand"
)

// SampleRun is one worker's BFS result message, carrying just enough to
// aggregate without re-walking the predecessor map.
type SampleRun struct {
	StartID      uint32
	StartTitle   string
	DeepestID    uint32
	DeepestTitle string
	LenDeepestSP int
	TotalVisited int64
	Histogram    map[int]int64
}

// SampleReport is the collector's aggregated output over M sample
// runs.
type SampleReport struct {
	MaxDeepestSP     SampleRun
	MinDeepestSP     SampleRun
	AvgDeepestSP     float64
	MaxTotalVisited  SampleRun
	MinTotalVisited  SampleRun
	AvgTotalVisited  float64
	// DepthExampleAtMax maps a depth to one start title that achieved it,
	// only for depths equal to the observed maximum across all runs.
	DepthExampleAtMax map[int]string
	// MeanHistogram and StdDevHistogram are the per-depth mean and
	// standard deviation of each run's histogram, normalized by the
	// edition's article count, over the M samples.
	MeanHistogram   map[int]float64
	StdDevHistogram map[int]float64
	NumRuns         int
}

// titleLookup resolves a page id to its title; satisfied by
// *store.Store.IDToTitle.
type titleLookup func(id uint32) (string, bool, error)

// RunSampleHarness draws m vertices uniformly at random from ids, fans
// them out across workers worker goroutines (floor 1, capped at m) each
// running a single-source BFS against cache, and aggregates the results
// on a single collector goroutine via a channel. Workers share the
// immutable cache by pointer; no locking is needed on the read path.
func RunSampleHarness(cache *Cache, ids []uint32, m, workers int, articleCount int64, titleOf titleLookup) (SampleReport, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > m {
		workers = m
	}
	if m == 0 || len(ids) == 0 {
		return SampleReport{}, nil
	}

	starts := make([]uint32, m)
	for i := range starts {
		starts[i] = ids[rand.Intn(len(ids))]
	}

	jobs := make(chan uint32, m)
	for _, id := range starts {
		jobs <- id
	}
	close(jobs)

	results := make(chan SampleRun, m)
	errs := make(chan error, workers)

	for w := 0; w < workers; w++ {
		go func() {
			for id := range jobs {
				res, err := BFS(cache, id, 0, false, -1)
				if err != nil {
					errs <- err
					return
				}
				run := SampleRun{
					StartID:      id,
					TotalVisited: res.TotalVisited,
					Histogram:    res.Histogram,
				}
				if res.HasDeepest {
					run.DeepestID = res.DeepestID
					run.LenDeepestSP = res.LenDeepestSP
				}
				if title, ok, terr := titleOf(id); terr == nil && ok {
					run.StartTitle = title
				}
				if title, ok, terr := titleOf(run.DeepestID); terr == nil && ok {
					run.DeepestTitle = title
				}
				results <- run
			}
		}()
	}

	collector := newCollector(articleCount)
	for i := 0; i < m; i++ {
		select {
		case err := <-errs:
			return SampleReport{}, err
		case run := <-results:
			collector.add(run)
		}
	}

	return collector.finish(), nil
}

// collector holds running aggregation state across arrival-ordered
// results. Max/min are commutative so arrival order does not affect the
// final statistics; the averaging pass below is explicitly two-pass
// (accumulate then divide).
type collector struct {
	articleCount int64
	runs         []SampleRun
	maxDeepest   *SampleRun
	minDeepest   *SampleRun
	maxVisited   *SampleRun
	minVisited   *SampleRun
	depthExample map[int]string
}

func newCollector(articleCount int64) *collector {
	return &collector{articleCount: articleCount, depthExample: make(map[int]string)}
}

func (c *collector) add(run SampleRun) {
	c.runs = append(c.runs, run)

	if c.maxDeepest == nil || run.LenDeepestSP > c.maxDeepest.LenDeepestSP {
		r := run
		c.maxDeepest = &r
	}
	if c.minDeepest == nil || run.LenDeepestSP < c.minDeepest.LenDeepestSP {
		r := run
		c.minDeepest = &r
	}
	if c.maxVisited == nil || run.TotalVisited > c.maxVisited.TotalVisited {
		r := run
		c.maxVisited = &r
	}
	if c.minVisited == nil || run.TotalVisited < c.minVisited.TotalVisited {
		r := run
		c.minVisited = &r
	}
}

func (c *collector) finish() SampleReport {
	report := SampleReport{NumRuns: len(c.runs)}
	if c.maxDeepest != nil {
		report.MaxDeepestSP = *c.maxDeepest
	}
	if c.minDeepest != nil {
		report.MinDeepestSP = *c.minDeepest
	}
	if c.maxVisited != nil {
		report.MaxTotalVisited = *c.maxVisited
	}
	if c.minVisited != nil {
		report.MinTotalVisited = *c.minVisited
	}

	var sumDeepest, sumVisited float64
	maxDepthSeen := -1
	for _, r := range c.runs {
		sumDeepest += float64(r.LenDeepestSP)
		sumVisited += float64(r.TotalVisited)
		if r.LenDeepestSP > maxDepthSeen {
			maxDepthSeen = r.LenDeepestSP
		}
	}
	n := float64(len(c.runs))
	if n > 0 {
		report.AvgDeepestSP = sumDeepest / n
		report.AvgTotalVisited = sumVisited / n
	}

	report.DepthExampleAtMax = make(map[int]string)
	for _, r := range c.runs {
		if r.LenDeepestSP == maxDepthSeen {
			if _, ok := report.DepthExampleAtMax[r.LenDeepestSP]; !ok {
				report.DepthExampleAtMax[r.LenDeepestSP] = r.StartTitle
			}
		}
	}

	report.MeanHistogram, report.StdDevHistogram = normalizedHistogramStats(c.runs, c.articleCount)
	return report
}

// normalizedHistogramStats computes, for every depth observed across
// runs, the mean and standard deviation of each run's per-article-count
// normalized histogram value
// deviation histogram". A run that never reached a given depth
// contributes 0 for that depth, so the statistic reflects the full
// population of runs, not just the ones that reached it.
func normalizedHistogramStats(runs []SampleRun, articleCount int64) (mean, stddev map[int]float64) {
	mean = make(map[int]float64)
	stddev = make(map[int]float64)
	if len(runs) == 0 || articleCount == 0 {
		return mean, stddev
	}

	depths := make(map[int]bool)
	for _, r := range runs {
		for d := range r.Histogram {
			depths[d] = true
		}
	}

	n := float64(len(runs))
	for d := range depths {
		var sum float64
		for _, r := range runs {
			sum += float64(r.Histogram[d]) / float64(articleCount)
		}
		m := sum / n
		mean[d] = m

		var sqSum float64
		for _, r := range runs {
			v := float64(r.Histogram[d]) / float64(articleCount)
			sqSum += (v - m) * (v - m)
		}
		stddev[d] = math.Sqrt(sqSum / n)
	}
	return mean, stddev
}
