// Package stats implements the online latency statistics reported by the
// hash equivalence server.
//
// A Collector keeps a running count, total, maximum, mean and the sum of
// squared deviations from the mean (Welford's algorithm). No samples are
// retained, so memory use is constant no matter how many requests the
// server handles.
//
// Key features include:
//   - Constant memory, numerically stable mean and variance
//   - Thread-safe sample addition, snapshotting and reset
//   - A JSON friendly Report matching the administrative stats payload
package stats

import (
	"math"
	"sync"
	"time"
)

// ----------------------------------------------------------------------------
// Report
// ----------------------------------------------------------------------------

// Report is a point-in-time view of a Collector. All durations are in seconds.
type Report struct {
	Num       uint64  `json:"num" cbor:"num"`
	TotalTime float64 `json:"total_time" cbor:"total_time"`
	MaxTime   float64 `json:"max_time" cbor:"max_time"`
	Average   float64 `json:"average" cbor:"average"`
	Stdev     float64 `json:"stdev" cbor:"stdev"`
}

// ----------------------------------------------------------------------------
// Collector
// ----------------------------------------------------------------------------

// Collector tracks the distribution of elapsed times
// using Welford's online algorithm.
type Collector struct {
	mutex sync.Mutex
	num   uint64  // Number of samples
	total float64 // Sum of all samples
	max   float64 // Largest sample
	mean  float64 // Running mean
	m2    float64 // Sum of squared deviations from the mean
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Add records one elapsed time
//
// Thread-safe: This method is safe for concurrent use
func (c *Collector) Add(elapsed time.Duration) {
	c.AddSeconds(elapsed.Seconds())
}

// AddSeconds records one elapsed time given in seconds
//
// Thread-safe: This method is safe for concurrent use
func (c *Collector) AddSeconds(x float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.num++
	if c.num == 1 {
		c.mean = x
		c.m2 = 0
	} else {
		lastMean := c.mean
		c.mean = lastMean + (x-lastMean)/float64(c.num)
		c.m2 = c.m2 + (x-lastMean)*(x-c.mean)
	}

	c.total += x
	if c.max < x {
		c.max = x
	}
}

// Reset clears all collected data
//
// Thread-safe: This method is safe for concurrent use
func (c *Collector) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.num = 0
	c.total = 0
	c.max = 0
	c.mean = 0
	c.m2 = 0
}

// Snapshot returns the current statistics
//
// Thread-safe: This method is safe for concurrent use
func (c *Collector) Snapshot() Report {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.report()
}

// SnapshotAndReset returns the current statistics and clears them in one
// step, so every sample ends up either in the report or in the new period.
//
// Thread-safe: This method is safe for concurrent use
func (c *Collector) SnapshotAndReset() Report {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	r := c.report()
	c.num = 0
	c.total = 0
	c.max = 0
	c.mean = 0
	c.m2 = 0
	return r
}

// report builds a Report. Caller must hold the mutex.
func (c *Collector) report() Report {
	return Report{
		Num:       c.num,
		TotalTime: c.total,
		MaxTime:   c.max,
		Average:   c.average(),
		Stdev:     c.stdev(),
	}
}

// Mean returns the running mean maintained by the online update
//
// Thread-safe: This method is safe for concurrent use
func (c *Collector) Mean() float64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.mean
}

// average is total/num, or 0 without samples. Caller must hold the mutex.
func (c *Collector) average() float64 {
	if c.num == 0 {
		return 0
	}
	return c.total / float64(c.num)
}

// stdev is the sample standard deviation, or 0 with fewer than two samples.
// Caller must hold the mutex.
func (c *Collector) stdev() float64 {
	if c.num <= 1 {
		return 0
	}
	return math.Sqrt(c.m2 / float64(c.num-1))
}

// ----------------------------------------------------------------------------
// Pair
// ----------------------------------------------------------------------------

// Pair bundles the two independent collectors a server maintains
type Pair struct {
	Connections *Collector
	Requests    *Collector
}

// PairReport is the administrative stats payload
type PairReport struct {
	Requests    Report `json:"requests" cbor:"requests"`
	Connections Report `json:"connections" cbor:"connections"`
}

// NewPair creates a pair of empty collectors
func NewPair() *Pair {
	return &Pair{
		Connections: NewCollector(),
		Requests:    NewCollector(),
	}
}

// Snapshot returns both reports. Each collector is read under its own lock.
func (p *Pair) Snapshot() PairReport {
	return PairReport{
		Requests:    p.Requests.Snapshot(),
		Connections: p.Connections.Snapshot(),
	}
}

// SnapshotAndReset returns both reports and zeroes the collectors. Each
// collector is read and cleared under its own lock.
func (p *Pair) SnapshotAndReset() PairReport {
	return PairReport{
		Requests:    p.Requests.SnapshotAndReset(),
		Connections: p.Connections.SnapshotAndReset(),
	}
}

