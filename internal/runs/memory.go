package runs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps runs in process. Used by tests and dry runs.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]Run
	// FailFinalize makes FinalizeRun return an error.
	FailFinalize bool
	Finalized    int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]Run)}
}

func (s *MemoryStore) InsertRun(_ context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; ok {
		return fmt.Errorf("run %s exists", r.ID)
	}
	s.runs[r.ID] = r
	return nil
}

func (s *MemoryStore) FinalizeRun(_ context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFinalize {
		return fmt.Errorf("store unavailable")
	}
	cur, ok := s.runs[r.ID]
	if !ok {
		return fmt.Errorf("run %s not found", r.ID)
	}
	if cur.Terminal() {
		return ErrAlreadyFinalized
	}
	s.runs[r.ID] = r
	s.Finalized++
	return nil
}

func (s *MemoryStore) LatestSucceededRun(_ context.Context, kind Kind, asOf time.Time) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Run
	for _, r := range s.runs {
		if r.Kind != kind || r.Status != StatusSucceeded || !sameDay(r.AsOfDate, asOf) {
			continue
		}
		if best == nil || r.StartedAt.After(best.StartedAt) {
			r := r
			best = &r
		}
	}
	return best, nil
}

func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Put stores a run as-is.
func (s *MemoryStore) Put(r Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
