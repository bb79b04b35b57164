package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-journal/backend/internal/auth"
	model "github.com/zhouzirui/z-journal/backend/internal/model/usage"
	"github.com/zhouzirui/z-journal/backend/internal/repository/memory"
	usagesvc "github.com/zhouzirui/z-journal/backend/internal/service/usage"
)

func setupRouter(t *testing.T) (*chi.Mux, *auth.JWTVerifier, *memory.Ledger) {
	t.Helper()
	verifier, err := auth.NewJWTVerifier("secret", "", "")
	require.NoError(t, err)
	ledger := memory.NewLedger()
	gov := usagesvc.NewGovernor(ledger,
		model.Limits{RealtimeMinutes: 30, StandardMinutes: 60, DailyCostUSD: 2},
		model.Rates{RealtimePerMinute: 0.3, StandardPerMinute: 0.03},
	)

	r := chi.NewRouter()
	New(verifier, gov).RegisterRoutes(r)
	return r, verifier, ledger
}

func TestTodayReportsUsageAndRemaining(t *testing.T) {
	r, verifier, ledger := setupRouter(t)
	_, err := ledger.Increment(context.Background(), "u1", model.DayKey(time.Now()), model.Delta{RealtimeMinutes: 10, EstimatedCostUSD: 3})
	require.NoError(t, err)
	token, err := verifier.Issue("u1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/usage/today", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var body todayResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 10.0, body.Usage.RealtimeMinutes)
	assert.Equal(t, 20.0, body.Remaining.RealtimeMinutes)
	assert.Equal(t, 60.0, body.Remaining.StandardMinutes)
	assert.Zero(t, body.Remaining.DailyCostUSD)
	assert.Equal(t, 0.3, body.Rates.RealtimePerMinute)
}

func TestTodayRequiresToken(t *testing.T) {
	r, _, _ := setupRouter(t)

	for _, header := range []string{"", "Bearer nope"} {
		req := httptest.NewRequest(http.MethodGet, "/usage/today", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, header)
	}
}
