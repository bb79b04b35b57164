// Package journal talks to the journal backend: the read-only context snapshot,
// memory search for the lookup tool, and saving finished sessions as entries.
package journal

import (
	"context"
	"errors"

	model "github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

var ErrNotConfigured = errors.New("journal backend not configured")

// ContextSource provides the four independent reads behind a context snapshot.
type ContextSource interface {
	RecentEntries(ctx context.Context, userID string, limit int) ([]model.Entry, error)
	ActiveGoals(ctx context.Context, userID string) ([]model.Goal, error)
	OpenSituations(ctx context.Context, userID string) ([]model.Situation, error)
	MoodTrend(ctx context.Context, userID string, days int) (model.MoodTrend, error)
}

// MemorySearcher backs the memory lookup tool.
type MemorySearcher interface {
	SearchMemories(ctx context.Context, userID string, query model.MemoryQuery) ([]model.MemoryResult, error)
}

// EntrySaver persists a finished session as a journal entry and returns its id.
type EntrySaver interface {
	SaveEntry(ctx context.Context, entry model.NewEntry) (string, error)
}

// Backend is everything the relay consumes from the journal service.
type Backend interface {
	ContextSource
	MemorySearcher
	EntrySaver
}
