package guided

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	"github.com/zhouzirui/z-journal/backend/internal/model/session"
	"github.com/zhouzirui/z-journal/backend/internal/service/router"
)

func TestListIncludesRoutedMode(t *testing.T) {
	store := model.NewMemoryStore(model.Seed())
	rt, err := router.New(context.Background(), "", store)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(store, rt).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/guided-sessions", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var views []definitionView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &views))
	modes := make(map[string]session.Mode, len(views))
	for _, v := range views {
		modes[v.Type] = v.Mode
	}
	assert.Len(t, views, 6)
	assert.Equal(t, session.ModeStandard, modes["morning_checkin"])
	assert.Equal(t, session.ModeStandard, modes["weekly_review"])
	assert.Equal(t, session.ModeRealtime, modes["vent_session"])
	assert.Equal(t, session.ModeRealtime, modes["celebration"])
}
