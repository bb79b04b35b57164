package journal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

type partialSource struct {
	calls atomic.Int32
}

func (s *partialSource) RecentEntries(context.Context, string, int) ([]model.Entry, error) {
	s.calls.Add(1)
	return []model.Entry{{ID: "e1", Content: "walked by the river"}}, nil
}

func (s *partialSource) ActiveGoals(context.Context, string) ([]model.Goal, error) {
	s.calls.Add(1)
	return nil, errors.New("goals service down")
}

func (s *partialSource) OpenSituations(context.Context, string) ([]model.Situation, error) {
	s.calls.Add(1)
	return []model.Situation{{ID: "s1", Title: "new job"}}, nil
}

func (s *partialSource) MoodTrend(context.Context, string, int) (model.MoodTrend, error) {
	s.calls.Add(1)
	return model.MoodTrend{Average: 6, Samples: 3}, nil
}

func TestContextLoaderDegradesPerRead(t *testing.T) {
	src := &partialSource{}
	snapshot := NewContextLoader(src, time.Second).Load(context.Background(), "u1")

	assert.EqualValues(t, 4, src.calls.Load())
	assert.Len(t, snapshot.RecentEntries, 1)
	assert.Empty(t, snapshot.ActiveGoals)
	assert.Len(t, snapshot.OpenSituations, 1)
	assert.Equal(t, 3, snapshot.MoodTrend.Samples)
}

func TestContextLoaderWithoutSource(t *testing.T) {
	snapshot := NewContextLoader(nil, 0).Load(context.Background(), "u1")
	require.NotNil(t, snapshot)
	assert.True(t, snapshot.IsEmpty())
}

func TestClientAgainstJournalAPI(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/users/{userID}/goals", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer key", req.Header.Get("Authorization"))
		assert.Equal(t, "active", req.URL.Query().Get("status"))
		_ = json.NewEncoder(w).Encode(map[string]any{"goals": []model.Goal{{ID: "g1", Title: "run a 10k"}}})
	})
	r.Post("/users/{userID}/entries", func(w http.ResponseWriter, req *http.Request) {
		var entry model.NewEntry
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&entry))
		assert.Equal(t, chi.URLParam(req, "userID"), entry.UserID)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "entry-1"})
	})
	r.Post("/users/{userID}/memories/search", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	client := NewClient(srv.URL+"/", "key", time.Second)
	ctx := context.Background()

	goals, err := client.ActiveGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "run a 10k", goals[0].Title)

	id, err := client.SaveEntry(ctx, model.NewEntry{UserID: "u1", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "entry-1", id)

	_, err = client.SearchMemories(ctx, "u1", model.MemoryQuery{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	_, err = NewClient("", "", 0).ActiveGoals(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMemoryLookupExecute(t *testing.T) {
	backend := NewMemoryBackend()
	backend.Seed("u1", []model.Entry{
		{ID: "e1", Date: time.Now(), Content: "Dinner with Maya at the harbour"},
		{ID: "e2", Date: time.Now(), Content: "Quiet day at home"},
	}, nil, nil)
	tool := NewMemoryLookup(backend)

	var out struct {
		Results []model.MemoryResult `json:"results"`
		Error   string               `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(tool.Execute(context.Background(), "u1", `{"query":"maya harbour"}`)), &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "e1", out.Results[0].EntryID)

	out.Results, out.Error = nil, ""
	require.NoError(t, json.Unmarshal([]byte(tool.Execute(context.Background(), "u1", `not json`)), &out))
	assert.NotEmpty(t, out.Error)

	def := tool.Definition()
	assert.Equal(t, MemoryToolName, def.Name)
	assert.Equal(t, []string{"query"}, def.Required)
}

func TestMemoryBackendSaveIsSearchable(t *testing.T) {
	backend := NewMemoryBackend()
	id, err := backend.SaveEntry(context.Background(), model.NewEntry{UserID: "u1", Content: "Grateful for coffee"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := backend.RecentEntries(context.Background(), "u1", 7)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
}
