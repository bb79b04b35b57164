package journal

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	model "github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

const (
	recentEntryLimit = 7
	moodTrendDays    = 14
)

// ContextLoader builds a ConversationContext from independent reads.
type ContextLoader struct {
	source  ContextSource
	timeout time.Duration
}

// NewContextLoader creates a loader; timeout bounds the whole fan-out.
func NewContextLoader(source ContextSource, timeout time.Duration) *ContextLoader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ContextLoader{source: source, timeout: timeout}
}

// Load runs the four reads concurrently. A failed read leaves its part empty;
// the snapshot is optional personalisation, so Load never fails.
func (l *ContextLoader) Load(ctx context.Context, userID string) *model.ConversationContext {
	snapshot := &model.ConversationContext{LoadedAt: time.Now().UTC()}
	if l == nil || l.source == nil {
		return snapshot
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		entries, err := l.source.RecentEntries(ctx, userID, recentEntryLimit)
		if err != nil {
			log.Printf("[journal] recent entries for %s: %v", userID, err)
			return nil
		}
		snapshot.RecentEntries = entries
		return nil
	})
	g.Go(func() error {
		goals, err := l.source.ActiveGoals(ctx, userID)
		if err != nil {
			log.Printf("[journal] active goals for %s: %v", userID, err)
			return nil
		}
		snapshot.ActiveGoals = goals
		return nil
	})
	g.Go(func() error {
		situations, err := l.source.OpenSituations(ctx, userID)
		if err != nil {
			log.Printf("[journal] open situations for %s: %v", userID, err)
			return nil
		}
		snapshot.OpenSituations = situations
		return nil
	})
	g.Go(func() error {
		trend, err := l.source.MoodTrend(ctx, userID, moodTrendDays)
		if err != nil {
			log.Printf("[journal] mood trend for %s: %v", userID, err)
			return nil
		}
		snapshot.MoodTrend = trend
		return nil
	})
	_ = g.Wait()

	return snapshot
}
