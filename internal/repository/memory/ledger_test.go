package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
)

func TestLedgerConcurrentIncrement(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = ledger.Increment(ctx, "a", "2026-03-10", usage.Delta{RealtimeMinutes: 1})
		}()
		go func() {
			defer wg.Done()
			_, _ = ledger.Increment(ctx, "b", "2026-03-10", usage.Delta{StandardMinutes: 2})
		}()
	}
	wg.Wait()

	a, err := ledger.Get(ctx, "a", "2026-03-10")
	require.NoError(t, err)
	b, err := ledger.Get(ctx, "b", "2026-03-10")
	require.NoError(t, err)

	assert.Equal(t, 50.0, a.RealtimeMinutes)
	assert.Zero(t, a.StandardMinutes)
	assert.Equal(t, 100.0, b.StandardMinutes)
	assert.Zero(t, b.RealtimeMinutes)
}
