package offline

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/ordercore/internal/enum"
)

// MemoryStore is a Store held in process memory. Entries do not survive a
// restart; use it for tests and demos.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*Entry)}
}

func (s *MemoryStore) Enqueue(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Request.Items = slices.Clone(e.Request.Items)
	s.entries[e.ID] = &e
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return *e, nil
}

func (s *MemoryStore) List(ctx context.Context, statuses ...string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if len(statuses) == 0 || slices.Contains(statuses, e.Status) {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *MemoryStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Entry
	for _, e := range s.entries {
		if e.Status == enum.QueueStatusPending && !e.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return entryLess(*due[i], *due[j]) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]Entry, len(due))
	for i, e := range due {
		e.Status = enum.QueueStatusSyncing
		e.UpdatedAt = now
		out[i] = *e
	}
	return out, nil
}

func (s *MemoryStore) MarkSynced(ctx context.Context, id uuid.UUID, orderID, orderNumber string, now time.Time) error {
	return s.update(id, []string{enum.QueueStatusSyncing}, func(e *Entry) {
		e.Status = enum.QueueStatusSynced
		e.Attempts++
		e.OrderID, e.OrderNumber = orderID, orderNumber
		e.LastError, e.ErrorKind = "", ""
		e.UpdatedAt = now
	})
}

func (s *MemoryStore) MarkRetry(ctx context.Context, id uuid.UUID, lastErr string, next, now time.Time) error {
	return s.update(id, []string{enum.QueueStatusSyncing}, func(e *Entry) {
		e.Status = enum.QueueStatusPending
		e.Attempts++
		e.LastError = lastErr
		e.NextAttemptAt = next
		e.UpdatedAt = now
	})
}

func (s *MemoryStore) MarkConflict(ctx context.Context, id uuid.UUID, kind, lastErr string, now time.Time) error {
	return s.update(id, []string{enum.QueueStatusSyncing}, func(e *Entry) {
		e.Status = enum.QueueStatusConflict
		e.Attempts++
		e.ErrorKind, e.LastError = kind, lastErr
		e.UpdatedAt = now
	})
}

func (s *MemoryStore) Requeue(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.update(id, []string{enum.QueueStatusConflict}, func(e *Entry) {
		e.Status = enum.QueueStatusPending
		e.NextAttemptAt = now
		e.UpdatedAt = now
	})
}

func (s *MemoryStore) Dismiss(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.update(id, []string{enum.QueueStatusPending, enum.QueueStatusConflict}, func(e *Entry) {
		e.Status = enum.QueueStatusDismissed
		e.UpdatedAt = now
	})
}

func (s *MemoryStore) ResetSyncing(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Status == enum.QueueStatusSyncing {
			e.Status = enum.QueueStatusPending
			e.NextAttemptAt = now
			e.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) update(id uuid.UUID, from []string, fn func(e *Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	if !slices.Contains(from, e.Status) {
		return ErrInvalidState
	}
	fn(e)
	return nil
}

func entryLess(a, b Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return entryLess(es[i], es[j]) })
}
