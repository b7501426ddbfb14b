package testkit

import (
	"context"
	"fmt"
	"sync"

	"abidenet/domain/core"
	"abidenet/ports"

	"gonum.org/v1/gonum/mat"
)

// InMemoryReader implements ports.TimeSeriesReader over a map, with hooks to
// simulate missing and unreadable subjects.
type InMemoryReader struct {
	mu         sync.RWMutex
	series     map[core.SubjectID]*mat.Dense
	unreadable map[core.SubjectID]bool
}

// NewInMemoryReader creates an empty reader
func NewInMemoryReader() *InMemoryReader {
	return &InMemoryReader{
		series:     make(map[core.SubjectID]*mat.Dense),
		unreadable: make(map[core.SubjectID]bool),
	}
}

// Put registers a subject's series
func (r *InMemoryReader) Put(id core.SubjectID, x *mat.Dense) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series[id] = x
}

// Remove makes a subject look missing on disk
func (r *InMemoryReader) Remove(id core.SubjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.series, id)
}

// Corrupt makes a subject fail to parse
func (r *InMemoryReader) Corrupt(id core.SubjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreadable[id] = true
}

// Read returns a copy so callers may modify it
func (r *InMemoryReader) Read(ctx context.Context, id core.SubjectID) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unreadable[id] {
		return nil, fmt.Errorf("%w: %s", ports.ErrSubjectUnreadable, id)
	}
	x, ok := r.series[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrSubjectMissing, id)
	}
	return mat.DenseCopyOf(x), nil
}
