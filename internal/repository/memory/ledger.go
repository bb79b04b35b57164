package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
)

type ledgerKey struct {
	userID string
	day    string
}

// Ledger keeps usage records in process memory.
type Ledger struct {
	mu      sync.Mutex
	records map[ledgerKey]usage.Record
}

// NewLedger returns an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[ledgerKey]usage.Record)}
}

// Get returns the record for (userID, day); missing records are zero-valued.
func (l *Ledger) Get(_ context.Context, userID, day string) (usage.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if record, ok := l.records[ledgerKey{userID, day}]; ok {
		return record, nil
	}
	return usage.Record{UserID: userID, Day: day}, nil
}

// Increment adds delta to the record for (userID, day).
func (l *Ledger) Increment(_ context.Context, userID, day string, delta usage.Delta) (usage.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{userID, day}
	record, ok := l.records[key]
	if !ok {
		record = usage.Record{UserID: userID, Day: day}
	}
	record.RealtimeMinutes += delta.RealtimeMinutes
	record.StandardMinutes += delta.StandardMinutes
	record.EstimatedCostUSD += delta.EstimatedCostUSD
	record.UpdatedAt = time.Now().UTC()
	l.records[key] = record
	return record, nil
}

// Close is a no-op.
func (l *Ledger) Close() error { return nil }
