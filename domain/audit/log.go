package audit

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrTerminalExists is returned when a second terminal record is appended
// for the same proposal.
var ErrTerminalExists = errors.New("audit: proposal already has a terminal record")

// Log is the append-only decision log contract.
type Log interface {
	// Append adds a record. Appending a second terminal record for the
	// same proposal fails with ErrTerminalExists.
	Append(ctx context.Context, r *Record) error

	// ByProposal returns all records for a proposal in append order.
	ByProposal(ctx context.Context, proposalID uuid.UUID) ([]*Record, error)

	// ByCorrelation returns all records sharing a correlation id in
	// append order.
	ByCorrelation(ctx context.Context, correlationID string) ([]*Record, error)

	// Recent returns the newest records, newest first.
	Recent(ctx context.Context, limit int) ([]*Record, error)

	// DecisionCounts returns how many proposals reached each terminal
	// decision.
	DecisionCounts(ctx context.Context) (map[Decision]int, error)
}

// MemoryLog is the in-process Log used in standalone mode and tests.
type MemoryLog struct {
	mu       sync.RWMutex
	records  []*Record
	terminal map[uuid.UUID]bool
}

// NewMemoryLog creates an empty in-memory decision log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{terminal: make(map[uuid.UUID]bool)}
}

func (l *MemoryLog) Append(ctx context.Context, r *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.Terminal() {
		if l.terminal[r.ProposalID] {
			return ErrTerminalExists
		}
		l.terminal[r.ProposalID] = true
	}
	clone := *r
	l.records = append(l.records, &clone)
	return nil
}

func (l *MemoryLog) ByProposal(ctx context.Context, proposalID uuid.UUID) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*Record
	for _, r := range l.records {
		if r.ProposalID == proposalID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (l *MemoryLog) ByCorrelation(ctx context.Context, correlationID string) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*Record
	for _, r := range l.records {
		if r.CorrelationID == correlationID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (l *MemoryLog) Recent(ctx context.Context, limit int) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Record, len(l.records))
	copy(result, l.records)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (l *MemoryLog) DecisionCounts(ctx context.Context) (map[Decision]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[Decision]int)
	for _, r := range l.records {
		if r.Terminal() {
			counts[r.Decision]++
		}
	}
	return counts, nil
}
