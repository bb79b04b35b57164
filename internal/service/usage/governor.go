package usage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/z-journal/backend/internal/model/session"
	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
)

// ErrInvalidUser is returned when a user id is empty.
var ErrInvalidUser = errors.New("usage: user id is required")

// Ledger persists per-user-per-day usage. Increment must apply the delta
// atomically and return the updated record.
type Ledger interface {
	Get(ctx context.Context, userID, day string) (usage.Record, error)
	Increment(ctx context.Context, userID, day string, delta usage.Delta) (usage.Record, error)
}

// Suggestions returned with each limit type.
var suggestions = map[usage.LimitType]string{
	usage.LimitDailyCost:       "You've reached today's voice budget. Try a written entry, and voice will be back tomorrow.",
	usage.LimitRealtimeMinutes: "You've used today's live conversation time. Switch to standard mode to keep journaling by voice.",
	usage.LimitStandardMinutes: "You've used today's voice minutes. Try typing an entry instead.",
	usage.LimitSessionDuration: "This session has reached its maximum length. Start a new session to keep going.",
}

// Suggestion returns the user-facing hint for a limit type.
func Suggestion(limit usage.LimitType) string {
	return suggestions[limit]
}

// Governor enforces daily voice quotas and records session usage.
type Governor struct {
	ledger Ledger
	limits usage.Limits
	rates  usage.Rates
	now    func() time.Time
}

// Option customises a Governor.
type Option func(*Governor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGovernor builds a Governor over the given ledger.
func NewGovernor(ledger Ledger, limits usage.Limits, rates usage.Rates, opts ...Option) *Governor {
	g := &Governor{
		ledger: ledger,
		limits: limits,
		rates:  rates,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limits returns the configured caps.
func (g *Governor) Limits() usage.Limits { return g.limits }

// Rates returns the configured per-minute rates.
func (g *Governor) Rates() usage.Rates { return g.rates }

// Check decides whether userID may start a session in mode today.
func (g *Governor) Check(ctx context.Context, userID string, mode session.Mode) (usage.Decision, error) {
	record, err := g.Today(ctx, userID)
	if err != nil {
		return usage.Decision{}, err
	}

	deny := func(limit usage.LimitType) usage.Decision {
		return usage.Decision{Allowed: false, LimitType: limit, Suggestion: Suggestion(limit), Record: record}
	}

	if g.limits.DailyCostUSD > 0 && record.EstimatedCostUSD >= g.limits.DailyCostUSD {
		return deny(usage.LimitDailyCost), nil
	}
	switch mode {
	case session.ModeRealtime:
		if g.limits.RealtimeMinutes > 0 && record.RealtimeMinutes >= g.limits.RealtimeMinutes {
			return deny(usage.LimitRealtimeMinutes), nil
		}
	case session.ModeStandard:
		if g.limits.StandardMinutes > 0 && record.StandardMinutes >= g.limits.StandardMinutes {
			return deny(usage.LimitStandardMinutes), nil
		}
	}
	return usage.Decision{Allowed: true, Record: record}, nil
}

// Record adds a finished session's duration and estimated cost to today's usage.
func (g *Governor) Record(ctx context.Context, userID string, mode session.Mode, duration time.Duration) (usage.Record, error) {
	if strings.TrimSpace(userID) == "" {
		return usage.Record{}, ErrInvalidUser
	}
	if duration < 0 {
		duration = 0
	}
	minutes := duration.Minutes()
	delta := usage.Delta{EstimatedCostUSD: g.Cost(mode, minutes)}
	switch mode {
	case session.ModeRealtime:
		delta.RealtimeMinutes = minutes
	default:
		delta.StandardMinutes = minutes
	}

	day := usage.DayKey(g.now())
	record, err := g.ledger.Increment(ctx, userID, day, delta)
	if err != nil {
		return usage.Record{}, fmt.Errorf("record usage for %s: %w", userID, err)
	}
	log.Printf("[usage] user=%s mode=%s minutes=%.2f cost=%.4f day=%s", userID, mode, minutes, delta.EstimatedCostUSD, day)
	return record, nil
}

// Cost estimates the USD cost of minutes spent in mode.
func (g *Governor) Cost(mode session.Mode, minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}
	if mode == session.ModeRealtime {
		return minutes * g.rates.RealtimePerMinute
	}
	return minutes * g.rates.StandardPerMinute
}

// Today returns the user's usage for the current calendar day.
func (g *Governor) Today(ctx context.Context, userID string) (usage.Record, error) {
	if strings.TrimSpace(userID) == "" {
		return usage.Record{}, ErrInvalidUser
	}
	day := usage.DayKey(g.now())
	record, err := g.ledger.Get(ctx, userID, day)
	if err != nil {
		return usage.Record{}, fmt.Errorf("load usage for %s: %w", userID, err)
	}
	return record, nil
}
