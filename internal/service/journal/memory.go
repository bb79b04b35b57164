package journal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	model "github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

// MemoryBackend is an in-process Backend used when no journal API is
// configured. Saved entries become searchable and show up as recent entries.
type MemoryBackend struct {
	mu         sync.RWMutex
	entries    map[string][]model.Entry
	goals      map[string][]model.Goal
	situations map[string][]model.Situation
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries:    make(map[string][]model.Entry),
		goals:      make(map[string][]model.Goal),
		situations: make(map[string][]model.Situation),
	}
}

// Seed stores fixture data for a user.
func (m *MemoryBackend) Seed(userID string, entries []model.Entry, goals []model.Goal, situations []model.Situation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = append(m.entries[userID], entries...)
	m.goals[userID] = append(m.goals[userID], goals...)
	m.situations[userID] = append(m.situations[userID], situations...)
}

func (m *MemoryBackend) RecentEntries(_ context.Context, userID string, limit int) ([]model.Entry, error) {
	m.mu.RLock()
	entries := append([]model.Entry(nil), m.entries[userID]...)
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Date.After(entries[j].Date) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *MemoryBackend) ActiveGoals(_ context.Context, userID string) ([]model.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Goal(nil), m.goals[userID]...), nil
}

func (m *MemoryBackend) OpenSituations(_ context.Context, userID string) ([]model.Situation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Situation(nil), m.situations[userID]...), nil
}

func (m *MemoryBackend) MoodTrend(_ context.Context, userID string, days int) (model.MoodTrend, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	var trend model.MoodTrend
	var sum float64
	for _, entry := range m.entries[userID] {
		if entry.Mood == nil || entry.Date.Before(cutoff) {
			continue
		}
		sum += *entry.Mood
		trend.Samples++
	}
	if trend.Samples > 0 {
		trend.Average = sum / float64(trend.Samples)
	}
	return trend, nil
}

// SearchMemories matches every query word case-insensitively against entry content.
func (m *MemoryBackend) SearchMemories(_ context.Context, userID string, q model.MemoryQuery) ([]model.MemoryResult, error) {
	words := strings.Fields(strings.ToLower(q.Query))
	if len(words) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []model.MemoryResult
	for _, entry := range m.entries[userID] {
		content := strings.ToLower(entry.Content)
		hits := 0
		for _, w := range words {
			if strings.Contains(content, w) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		results = append(results, model.MemoryResult{
			EntryID: entry.ID,
			Date:    entry.Date,
			Excerpt: excerpt(entry.Content, 200),
			Score:   float64(hits) / float64(len(words)),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func (m *MemoryBackend) SaveEntry(_ context.Context, entry model.NewEntry) (string, error) {
	id := uuid.NewString()
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	m.mu.Lock()
	m.entries[entry.UserID] = append(m.entries[entry.UserID], model.Entry{
		ID:      id,
		Date:    created,
		Title:   entry.Title,
		Content: entry.Content,
	})
	m.mu.Unlock()
	return id, nil
}

func excerpt(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "…"
}
