package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown review items.
	ErrNotFound = errors.New("review: item not found")

	// ErrAlreadyResolved is returned when resolving a non-pending item.
	ErrAlreadyResolved = errors.New("review: item already resolved")
)

// Queue is the manual-review queue contract.
type Queue interface {
	// Park stores a new pending item.
	Park(ctx context.Context, item *Item) error

	// Get returns one item, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Item, error)

	// Pending returns all pending items, oldest first.
	Pending(ctx context.Context) ([]*Item, error)

	// ByCorrelation returns all items for a correlation id, oldest first.
	ByCorrelation(ctx context.Context, correlationID string) ([]*Item, error)

	// Resolve moves a pending item to a resolved status. Resolving a
	// non-pending item fails with ErrAlreadyResolved.
	Resolve(ctx context.Context, id uuid.UUID, status Status, resolvedBy string) (*Item, error)

	// ExpireBefore expires every pending item parked before cutoff and
	// returns how many were expired.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int, error)

	// PendingCount returns the current queue depth.
	PendingCount(ctx context.Context) (int, error)
}

// MemoryQueue is the in-process Queue used in standalone mode and tests.
type MemoryQueue struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Item
	order []uuid.UUID
}

// NewMemoryQueue creates an empty in-memory review queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[uuid.UUID]*Item)}
}

func (q *MemoryQueue) Park(ctx context.Context, item *Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	clone := *item
	q.items[item.ID] = &clone
	q.order = append(q.order, item.ID)
	return nil
}

func (q *MemoryQueue) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	item, ok := q.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *item
	return &clone, nil
}

func (q *MemoryQueue) Pending(ctx context.Context) ([]*Item, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var result []*Item
	for _, id := range q.order {
		if item := q.items[id]; item.Status == StatusPending {
			clone := *item
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (q *MemoryQueue) ByCorrelation(ctx context.Context, correlationID string) ([]*Item, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var result []*Item
	for _, id := range q.order {
		if item := q.items[id]; item.CorrelationID == correlationID {
			clone := *item
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (q *MemoryQueue) Resolve(ctx context.Context, id uuid.UUID, status Status, resolvedBy string) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if item.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}

	now := time.Now().UTC()
	item.Status = status
	item.ResolvedAt = &now
	item.ResolvedBy = resolvedBy

	clone := *item
	return &clone, nil
}

func (q *MemoryQueue) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	expired := 0
	now := time.Now().UTC()
	for _, item := range q.items {
		if item.Status == StatusPending && item.CreatedAt.Before(cutoff) {
			item.Status = StatusExpired
			item.ResolvedAt = &now
			item.ResolvedBy = "governance-engine"
			expired++
		}
	}
	return expired, nil
}

func (q *MemoryQueue) PendingCount(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	count := 0
	for _, item := range q.items {
		if item.Status == StatusPending {
			count++
		}
	}
	return count, nil
}
