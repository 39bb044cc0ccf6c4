package contest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	draws  map[string]DrawRequest
	asset  []byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		draws: make(map[string]DrawRequest),
	}
}

var _ Store = (*MemoryStore)(nil)

// Journal operations

func (s *MemoryStore) AppendEvent(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.events); n > 0 && event.Seq <= s.events[n-1].Seq {
		return apperrors.Conflict("event already recorded").
			WithDetails("seq", event.Seq).
			WithDetails("last", s.events[n-1].Seq)
	}
	s.events = append(s.events, copyEvent(event))
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.events), func(i int) bool { return s.events[i].Seq > afterSeq })
	end := len(s.events)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]Event, 0, end-start)
	for _, ev := range s.events[start:end] {
		out = append(out, copyEvent(ev))
	}
	return out, nil
}

// Draw operations

func (s *MemoryStore) CreateDraw(ctx context.Context, draw DrawRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.draws[draw.ID]; ok {
		return fmt.Errorf("draw already exists: %s", draw.ID)
	}
	s.draws[draw.ID] = copyDraw(draw)
	return nil
}

func (s *MemoryStore) UpdateDraw(ctx context.Context, draw DrawRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.draws[draw.ID]; !ok {
		return ErrDrawNotFound.WithDetails("id", draw.ID)
	}
	s.draws[draw.ID] = copyDraw(draw)
	return nil
}

func (s *MemoryStore) GetDraw(ctx context.Context, id string) (DrawRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draw, ok := s.draws[id]
	if !ok {
		return DrawRequest{}, ErrDrawNotFound.WithDetails("id", id)
	}
	return copyDraw(draw), nil
}

func (s *MemoryStore) ListDrawsByStatus(ctx context.Context, status DrawStatus) ([]DrawRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DrawRequest
	for _, d := range s.draws {
		if d.Status == status {
			out = append(out, copyDraw(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

// Asset state

// LoadAssetState returns the saved asset ledger, nil when none was saved.
func (s *MemoryStore) LoadAssetState(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.asset == nil {
		return nil, nil
	}
	return append([]byte(nil), s.asset...), nil
}

func (s *MemoryStore) SaveAssetState(ctx context.Context, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asset = append([]byte(nil), state...)
	return nil
}

func copyEvent(ev Event) Event {
	ev.Amount = clone(ev.Amount)
	ev.EntriesDelta = clone(ev.EntriesDelta)
	ev.UnitsDelta = clone(ev.UnitsDelta)
	return ev
}

func copyDraw(d DrawRequest) DrawRequest {
	if d.RandomValue != nil {
		d.RandomValue = d.RandomValue.Clone()
	}
	if d.Normalized != nil {
		d.Normalized = d.Normalized.Clone()
	}
	d.Reward = clone(d.Reward)
	if d.FulfilledAt != nil {
		t := *d.FulfilledAt
		d.FulfilledAt = &t
	}
	return d
}
