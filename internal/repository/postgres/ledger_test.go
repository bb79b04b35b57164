package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
)

func TestLedgerIncrement(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	ledger, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer ledger.Close()

	userID := "test-" + uuid.NewString()
	_, err = ledger.Increment(ctx, userID, "2026-03-10", usage.Delta{RealtimeMinutes: 1.5, EstimatedCostUSD: 0.45})
	require.NoError(t, err)
	record, err := ledger.Increment(ctx, userID, "2026-03-10", usage.Delta{RealtimeMinutes: 0.5, EstimatedCostUSD: 0.15})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, record.RealtimeMinutes, 1e-9)
	assert.InDelta(t, 0.6, record.EstimatedCostUSD, 1e-9)

	got, err := ledger.Get(ctx, userID, "2026-03-10")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got.RealtimeMinutes, 1e-9)
}
