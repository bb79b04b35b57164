package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
)

// Ledger stores voice usage in the voice_usage table.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger over an open database.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Get returns the record for (userID, day); missing rows are zero-valued.
func (l *Ledger) Get(ctx context.Context, userID, day string) (usage.Record, error) {
	record := usage.Record{UserID: userID, Day: day}
	var updatedAt int64
	err := l.db.QueryRowContext(ctx, `
		SELECT realtime_minutes, standard_minutes, estimated_cost_usd, updated_at
		FROM voice_usage WHERE user_id = ? AND day = ?`, userID, day,
	).Scan(&record.RealtimeMinutes, &record.StandardMinutes, &record.EstimatedCostUSD, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return record, nil
	}
	if err != nil {
		return usage.Record{}, fmt.Errorf("failed to get usage: %w", err)
	}
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return record, nil
}

// Increment upserts (userID, day) adding delta to every counter.
func (l *Ledger) Increment(ctx context.Context, userID, day string, delta usage.Delta) (usage.Record, error) {
	now := time.Now().UTC()
	record := usage.Record{UserID: userID, Day: day}
	var updatedAt int64
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO voice_usage (user_id, day, realtime_minutes, standard_minutes, estimated_cost_usd, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET
			realtime_minutes = voice_usage.realtime_minutes + excluded.realtime_minutes,
			standard_minutes = voice_usage.standard_minutes + excluded.standard_minutes,
			estimated_cost_usd = voice_usage.estimated_cost_usd + excluded.estimated_cost_usd,
			updated_at = excluded.updated_at
		RETURNING realtime_minutes, standard_minutes, estimated_cost_usd, updated_at`,
		userID, day, delta.RealtimeMinutes, delta.StandardMinutes, delta.EstimatedCostUSD, now.UnixMilli(),
	).Scan(&record.RealtimeMinutes, &record.StandardMinutes, &record.EstimatedCostUSD, &updatedAt)
	if err != nil {
		return usage.Record{}, fmt.Errorf("failed to increment usage: %w", err)
	}
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return record, nil
}
