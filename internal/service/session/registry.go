// Package session owns live voice sessions: at most one per user, torn down on
// explicit end, disconnect or inactivity.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	model "github.com/zhouzirui/z-journal/backend/internal/model/session"
	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrInvalidMode     = errors.New("invalid processing mode")
	ErrSessionNotFound = errors.New("session not found")
)

// AdmissionError is returned by Create when usage limits reject a new session.
type AdmissionError struct {
	Decision usage.Decision
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("usage limit reached: %s", e.Decision.LimitType)
}

// Governor is the admission and accounting contract the registry relies on.
type Governor interface {
	Check(ctx context.Context, userID string, mode model.Mode) (usage.Decision, error)
	Record(ctx context.Context, userID string, mode model.Mode, duration time.Duration) (usage.Record, error)
	Cost(mode model.Mode, minutes float64) float64
}

// EvictHook observes sessions removed by the idle sweep.
type EvictHook func(sess *Session)

// Config tunes the registry.
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxAudioBytes int
}

// CreateParams describes a session request.
type CreateParams struct {
	UserID      string
	Mode        model.Mode
	SessionType string
}

// EndResult reports what ending a session accounted.
type EndResult struct {
	Session  model.Info
	Duration time.Duration
	CostUSD  float64
	Usage    usage.Record
}

// Registry is the process-local session store.
type Registry struct {
	governor Governor
	cfg      Config
	now      func() time.Time

	createMu sync.Mutex

	mu     sync.RWMutex
	byUser map[string]*Session
	byID   map[string]*Session

	hooksMu sync.RWMutex
	hooks   []EvictHook
}

// NewRegistry creates an empty registry.
func NewRegistry(governor Governor, cfg Config) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Registry{
		governor: governor,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		byUser:   make(map[string]*Session),
		byID:     make(map[string]*Session),
	}
}

// SetClock overrides the time source; intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time { return r.now() }

// OnEvict registers a hook run after the sweep ends an idle session.
func (r *Registry) OnEvict(hook EvictHook) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, hook)
	r.hooksMu.Unlock()
}

// Create returns the user's live session if there is one; otherwise it runs
// the admission check and allocates a new session. resumed reports which.
func (r *Registry) Create(ctx context.Context, params CreateParams) (sess *Session, resumed bool, err error) {
	if strings.TrimSpace(params.UserID) == "" {
		return nil, false, ErrUserRequired
	}
	if !params.Mode.Valid() {
		return nil, false, ErrInvalidMode
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	if existing := r.Get(params.UserID); existing != nil {
		return existing, true, nil
	}

	decision, err := r.governor.Check(ctx, params.UserID, params.Mode)
	if err != nil {
		return nil, false, fmt.Errorf("admission check: %w", err)
	}
	if !decision.Allowed {
		return nil, false, &AdmissionError{Decision: decision}
	}

	now := r.now()
	sess = &Session{
		ID:            uuid.NewString(),
		UserID:        params.UserID,
		Mode:          params.Mode,
		SessionType:   params.SessionType,
		StartTime:     now,
		maxAudioBytes: r.cfg.MaxAudioBytes,
		lastActivity:  now,
	}

	r.mu.Lock()
	r.byUser[sess.UserID] = sess
	r.byID[sess.ID] = sess
	r.mu.Unlock()

	log.Printf("[session] created id=%s user=%s mode=%s type=%q", sess.ID, sess.UserID, sess.Mode, sess.SessionType)
	return sess, false, nil
}

// Get returns the user's live session or nil.
func (r *Registry) Get(userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// GetByID returns a live session by id or nil.
func (r *Registry) GetByID(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// End removes the user's session and records its usage. The session is
// removed even when accounting fails.
func (r *Registry) End(ctx context.Context, userID, reason string) (*EndResult, error) {
	r.mu.Lock()
	sess := r.byUser[userID]
	if sess != nil {
		r.detachLocked(sess)
	}
	r.mu.Unlock()

	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return r.finish(ctx, sess, reason)
}

func (r *Registry) detachLocked(sess *Session) {
	if r.byUser[sess.UserID] == sess {
		delete(r.byUser, sess.UserID)
	}
	delete(r.byID, sess.ID)
}

func (r *Registry) finish(ctx context.Context, sess *Session, reason string) (*EndResult, error) {
	if !sess.markEnded() {
		return nil, ErrSessionNotFound
	}
	duration := r.now().Sub(sess.StartTime)
	if duration < 0 {
		duration = 0
	}
	result := &EndResult{
		Session:  sess.Info(),
		Duration: duration,
		CostUSD:  r.governor.Cost(sess.Mode, duration.Minutes()),
	}

	record, err := r.governor.Record(ctx, sess.UserID, sess.Mode, duration)
	if err != nil {
		log.Printf("[session] usage accounting failed id=%s user=%s: %v", sess.ID, sess.UserID, err)
		return result, err
	}
	result.Usage = record
	log.Printf("[session] ended id=%s user=%s reason=%s duration=%s", sess.ID, sess.UserID, reason, duration.Round(time.Second))
	return result, nil
}

// Sweep ends every session idle for longer than the idle timeout and returns
// how many were evicted.
func (r *Registry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []*Session
	for _, sess := range r.byID {
		if sess.LastActivity().Before(cutoff) {
			idle = append(idle, sess)
			r.detachLocked(sess)
		}
	}
	r.mu.Unlock()

	for _, sess := range idle {
		if _, err := r.finish(ctx, sess, "idle"); err != nil && !errors.Is(err, ErrSessionNotFound) {
			log.Printf("[session] sweep end failed id=%s: %v", sess.ID, err)
		}
		r.hooksMu.RLock()
		hooks := append([]EvictHook(nil), r.hooks...)
		r.hooksMu.RUnlock()
		for _, hook := range hooks {
			hook(sess)
		}
	}
	return len(idle)
}

// RunSweeper evicts idle sessions every sweep interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ctx); n > 0 {
				log.Printf("[session] sweep evicted %d idle sessions", n)
			}
		}
	}
}

// EndAll ends every live session; used on shutdown.
func (r *Registry) EndAll(ctx context.Context, reason string) int {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.byID))
	for _, sess := range r.byID {
		all = append(all, sess)
		r.detachLocked(sess)
	}
	r.mu.Unlock()

	for _, sess := range all {
		_, _ = r.finish(ctx, sess, reason)
	}
	return len(all)
}
