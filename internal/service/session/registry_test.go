package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-journal/backend/internal/model/session"
	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
	"github.com/zhouzirui/z-journal/backend/internal/repository/memory"
	usagesvc "github.com/zhouzirui/z-journal/backend/internal/service/usage"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T) (*Registry, *memory.Ledger, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	ledger := memory.NewLedger()
	gov := usagesvc.NewGovernor(ledger,
		usage.Limits{RealtimeMinutes: 30, StandardMinutes: 60, DailyCostUSD: 2},
		usage.Rates{RealtimePerMinute: 0.3, StandardPerMinute: 0.03},
		usagesvc.WithClock(clk.Now),
	)
	reg := NewRegistry(gov, Config{IdleTimeout: 10 * time.Minute, SweepInterval: time.Minute, MaxAudioBytes: 16})
	reg.SetClock(clk.Now)
	return reg, ledger, clk
}

func TestCreateIsIdempotentPerUser(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	first, resumed, err := reg.Create(ctx, CreateParams{UserID: "u1", Mode: model.ModeRealtime})
	require.NoError(t, err)
	assert.False(t, resumed)

	second, resumed, err := reg.Create(ctx, CreateParams{UserID: "u1", Mode: model.ModeStandard, SessionType: "gratitude"})
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Same(t, first, second)
	assert.Equal(t, model.ModeRealtime, second.Mode)
	assert.Equal(t, 1, reg.Count())
}

func TestConcurrentCreateYieldsOneSession(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, _, err := reg.Create(context.Background(), CreateParams{UserID: "u1", Mode: model.ModeStandard})
			if assert.NoError(t, err) {
				ids <- sess.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	unique := map[string]struct{}{}
	for id := range ids {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, 1)
	assert.Equal(t, 1, reg.Count())
}

func TestCreateRejectedByAdmission(t *testing.T) {
	reg, ledger, clk := newTestRegistry(t)
	_, err := ledger.Increment(context.Background(), "u1", usage.DayKey(clk.Now()), usage.Delta{RealtimeMinutes: 30})
	require.NoError(t, err)

	sess, _, err := reg.Create(context.Background(), CreateParams{UserID: "u1", Mode: model.ModeRealtime, SessionType: "vent_session"})
	assert.Nil(t, sess)
	var admission *AdmissionError
	require.True(t, errors.As(err, &admission))
	assert.Equal(t, usage.LimitRealtimeMinutes, admission.Decision.LimitType)
	assert.Nil(t, reg.Get("u1"))
}

func TestCreateValidatesParams(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, _, err := reg.Create(context.Background(), CreateParams{Mode: model.ModeRealtime})
	assert.ErrorIs(t, err, ErrUserRequired)
	_, _, err = reg.Create(context.Background(), CreateParams{UserID: "u1", Mode: "turbo"})
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestEndRecordsUsageAndRemovesSession(t *testing.T) {
	reg, ledger, clk := newTestRegistry(t)
	ctx := context.Background()

	sess, _, err := reg.Create(ctx, CreateParams{UserID: "u1", Mode: model.ModeRealtime})
	require.NoError(t, err)
	clk.Advance(5 * time.Minute)

	result, err := reg.End(ctx, "u1", "client")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, result.Duration)
	assert.InDelta(t, 1.5, result.CostUSD, 1e-9)
	assert.True(t, sess.Ended())
	assert.Nil(t, reg.Get("u1"))
	assert.Nil(t, reg.GetByID(sess.ID))

	record, err := ledger.Get(ctx, "u1", usage.DayKey(clk.Now()))
	require.NoError(t, err)
	assert.InDelta(t, 5, record.RealtimeMinutes, 1e-9)

	_, err = reg.End(ctx, "u1", "client")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	reg, ledger, clk := newTestRegistry(t)
	ctx := context.Background()

	var evicted []string
	reg.OnEvict(func(s *Session) { evicted = append(evicted, s.UserID) })

	idle, _, err := reg.Create(ctx, CreateParams{UserID: "idle", Mode: model.ModeStandard})
	require.NoError(t, err)
	clk.Advance(6 * time.Minute)
	active, _, err := reg.Create(ctx, CreateParams{UserID: "active", Mode: model.ModeStandard})
	require.NoError(t, err)
	clk.Advance(5 * time.Minute)
	active.Touch(clk.Now())

	assert.Equal(t, 1, reg.Sweep(ctx))
	assert.Equal(t, []string{"idle"}, evicted)
	assert.True(t, idle.Ended())
	assert.NotNil(t, reg.Get("active"))

	record, err := ledger.Get(ctx, "idle", usage.DayKey(clk.Now()))
	require.NoError(t, err)
	assert.InDelta(t, 11, record.StandardMinutes, 1e-9)

	// handlers holding an evicted session must be able to keep calling it
	assert.Nil(t, idle.FlushAudio())
	assert.False(t, idle.TryBeginTurn())
}

func TestFlushAudioTakesAndClears(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sess, _, err := reg.Create(context.Background(), CreateParams{UserID: "u1", Mode: model.ModeStandard})
	require.NoError(t, err)

	require.NoError(t, sess.AppendAudio([]byte{1, 2}))
	require.NoError(t, sess.AppendAudio([]byte{3, 4, 5}))
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, sess.FlushAudio())
	assert.Nil(t, sess.FlushAudio())

	assert.ErrorIs(t, sess.AppendAudio(make([]byte, 17)), ErrAudioBufferFull)
}

func TestTranscriptSequenceStrictlyIncreases(t *testing.T) {
	reg, _, clk := newTestRegistry(t)
	sess, _, err := reg.Create(context.Background(), CreateParams{UserID: "u1", Mode: model.ModeStandard})
	require.NoError(t, err)

	var last int64
	for i := 0; i < 5; i++ {
		entry := sess.AppendTranscript(model.SpeakerUser, "hi", clk.Now())
		assert.Greater(t, entry.SequenceID, last)
		last = entry.SequenceID
	}

	assert.Equal(t, int64(5), sess.RestoreTranscript("User: older", 3))
	assert.Equal(t, "User: older", sess.TranscriptText())
	assert.Equal(t, int64(40), sess.RestoreTranscript("User: earlier\nAssistant: reply", 40))
	entry := sess.AppendTranscript(model.SpeakerAssistant, "welcome back", clk.Now())
	assert.Equal(t, int64(41), entry.SequenceID)
	assert.Equal(t, "User: earlier\nAssistant: reply\nAssistant: welcome back", sess.TranscriptText())
}

func TestTurnClaimIsExclusive(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sess, _, err := reg.Create(context.Background(), CreateParams{UserID: "u1", Mode: model.ModeStandard})
	require.NoError(t, err)

	require.True(t, sess.TryBeginTurn())
	assert.False(t, sess.TryBeginTurn())
	sess.EndTurn()
	assert.True(t, sess.TryBeginTurn())
}

func TestSpokenByFiltersSpeaker(t *testing.T) {
	reg, _, clk := newTestRegistry(t)
	sess, _, err := reg.Create(context.Background(), CreateParams{UserID: "u1", Mode: model.ModeStandard})
	require.NoError(t, err)

	sess.AppendTranscript(model.SpeakerUser, "rough morning", clk.Now())
	sess.AppendTranscript(model.SpeakerAssistant, "what happened?", clk.Now())
	sess.AppendTranscript(model.SpeakerUser, "missed the bus", clk.Now())

	assert.Equal(t, "rough morning\nmissed the bus", sess.SpokenBy(model.SpeakerUser))
	assert.Empty(t, sess.SpokenBy(model.SpeakerSystem))
}
