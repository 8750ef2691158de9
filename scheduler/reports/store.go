package reports

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Store holds unsent reports in the order they were appended.
type Store interface {
	// Append assigns r the next sequence number and stores it.
	Append(r Report) (Report, error)
	// Pending returns every stored report, ordered by Seq.
	Pending() ([]Report, error)
	// Ack removes a sent report.
	Ack(seq uint64) error
	Close() error
}

type memoryStore struct {
	mu      sync.Mutex
	next    uint64
	reports map[uint64]Report
	closed  bool
}

func NewMemoryStore() Store {
	return &memoryStore{reports: make(map[uint64]Report)}
}

var errClosed = errors.New("report store is closed")

func (s *memoryStore) Append(r Report) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return r, errClosed
	}
	s.next++
	r.Seq = s.next
	s.reports[r.Seq] = r
	return r, nil
}

func (s *memoryStore) Pending() ([]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	out := make([]Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *memoryStore) Ack(seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	delete(s.reports, seq)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
