package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
	"github.com/zhouzirui/z-journal/backend/internal/repository/migrations"
)

// Ledger stores voice usage in Postgres.
type Ledger struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, applies pending migrations and returns a Ledger.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.Postgres())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	return &Ledger{pool: pool}, nil
}

// Get returns the record for (userID, day); missing rows are zero-valued.
func (l *Ledger) Get(ctx context.Context, userID, day string) (usage.Record, error) {
	record := usage.Record{UserID: userID, Day: day}
	err := l.pool.QueryRow(ctx, `
		SELECT realtime_minutes, standard_minutes, estimated_cost_usd, updated_at
		FROM voice_usage WHERE user_id = $1 AND day = $2`, userID, day,
	).Scan(&record.RealtimeMinutes, &record.StandardMinutes, &record.EstimatedCostUSD, &record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return record, nil
	}
	if err != nil {
		return usage.Record{}, fmt.Errorf("failed to get usage: %w", err)
	}
	return record, nil
}

// Increment upserts (userID, day) adding delta to every counter in one statement.
func (l *Ledger) Increment(ctx context.Context, userID, day string, delta usage.Delta) (usage.Record, error) {
	record := usage.Record{UserID: userID, Day: day}
	err := l.pool.QueryRow(ctx, `
		INSERT INTO voice_usage (user_id, day, realtime_minutes, standard_minutes, estimated_cost_usd, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id, day) DO UPDATE SET
			realtime_minutes = voice_usage.realtime_minutes + EXCLUDED.realtime_minutes,
			standard_minutes = voice_usage.standard_minutes + EXCLUDED.standard_minutes,
			estimated_cost_usd = voice_usage.estimated_cost_usd + EXCLUDED.estimated_cost_usd,
			updated_at = now()
		RETURNING realtime_minutes, standard_minutes, estimated_cost_usd, updated_at`,
		userID, day, delta.RealtimeMinutes, delta.StandardMinutes, delta.EstimatedCostUSD,
	).Scan(&record.RealtimeMinutes, &record.StandardMinutes, &record.EstimatedCostUSD, &record.UpdatedAt)
	if err != nil {
		return usage.Record{}, fmt.Errorf("failed to increment usage: %w", err)
	}
	return record, nil
}

// Close releases the pool.
func (l *Ledger) Close() error {
	l.pool.Close()
	return nil
}
