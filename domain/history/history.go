package history

import (
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultCapacity is the number of waist measurements kept per axis.
const DefaultCapacity = 20

// Buffer is a fixed-capacity rolling record, newest first. Entries start at
// zero and the oldest value is discarded on overflow. Safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	values []float64 // ring storage
	head   int       // index of newest value
	filled int
}

// New returns a zero-filled buffer. Non-positive capacity uses DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{values: make([]float64, capacity), head: capacity - 1}
}

// Capacity returns the fixed length of snapshots.
func (b *Buffer) Capacity() int { return len(b.values) }

// Push inserts v as the newest entry.
func (b *Buffer) Push(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = (b.head + 1) % len(b.values)
	b.values[b.head] = v
	if b.filled < len(b.values) {
		b.filled++
	}
}

// Snapshot returns a copy ordered newest first. Its length is always Capacity.
func (b *Buffer) Snapshot() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.values)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = b.values[(b.head-i+n)%n]
	}
	return out
}

// Len returns how many entries have been pushed, capped at Capacity.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filled
}

// Reset zeroes every entry.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.values {
		b.values[i] = 0
	}
	b.head = len(b.values) - 1
	b.filled = 0
}

// Stats summarises the pushed entries (zero padding excluded).
type Stats struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Stats computes summary statistics over the filled entries.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	n := b.filled
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = b.values[(b.head-i+len(b.values))%len(b.values)]
	}
	b.mu.Unlock()
	if n == 0 {
		return Stats{}
	}
	s := Stats{Count: n, Min: floats.Min(vals), Max: floats.Max(vals)}
	if n == 1 {
		s.Mean = vals[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	return s
}
