package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-journal/backend/internal/auth"
	"github.com/zhouzirui/z-journal/backend/internal/model/chat"
	guidedmodel "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	speechmodel "github.com/zhouzirui/z-journal/backend/internal/model/speech"
	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
	"github.com/zhouzirui/z-journal/backend/internal/repository/memory"
	"github.com/zhouzirui/z-journal/backend/internal/service/ai"
	"github.com/zhouzirui/z-journal/backend/internal/service/journal"
	"github.com/zhouzirui/z-journal/backend/internal/service/pipeline"
	"github.com/zhouzirui/z-journal/backend/internal/service/realtime"
	"github.com/zhouzirui/z-journal/backend/internal/service/router"
	"github.com/zhouzirui/z-journal/backend/internal/service/session"
	usagesvc "github.com/zhouzirui/z-journal/backend/internal/service/usage"
)

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(context.Context, []byte) (string, error) { return s.text, nil }

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(context.Context, string) ([]byte, error) { return []byte("pcm"), nil }

// fakeUpstream accepts realtime dials and answers session.update with
// session.created.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(data, &ev)
			if ev.Type == "session.update" {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.created"}`))
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	t        *testing.T
	srv      *httptest.Server
	verifier *auth.JWTVerifier
	ledger   *memory.Ledger
	registry *session.Registry
	journal  *journal.MemoryBackend

	clockMu sync.Mutex
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, ledger: memory.NewLedger(), journal: journal.NewMemoryBackend(), now: time.Now().UTC()}

	verifier, err := auth.NewJWTVerifier("test-secret", "", "")
	require.NoError(t, err)
	h.verifier = verifier

	gov := usagesvc.NewGovernor(h.ledger,
		usage.Limits{RealtimeMinutes: 30, StandardMinutes: 60, DailyCostUSD: 2},
		usage.Rates{RealtimePerMinute: 0.3, StandardPerMinute: 0.03},
	)
	h.registry = session.NewRegistry(gov, session.Config{IdleTimeout: time.Hour})
	h.registry.SetClock(h.clock)

	store := guidedmodel.NewMemoryStore(guidedmodel.Seed())
	rt, err := router.New(context.Background(), "", store)
	require.NoError(t, err)

	completer := ai.CompleterFunc(func(context.Context, ai.Request) (chat.Message, error) {
		return chat.Message{Role: chat.RoleAssistant, Content: "Tell me more."}, nil
	})
	lookup := journal.NewMemoryLookup(h.journal)
	upstream := fakeUpstream(t)

	handler := New(Deps{
		Verifier: verifier,
		Registry: h.registry,
		Router:   rt,
		Guided:   store,
		Context:  journal.NewContextLoader(h.journal, time.Second),
		Saver:    h.journal,
		Pipeline: pipeline.NewStandard(stubTranscriber{text: "I went running"}, stubSynthesizer{}, completer, lookup, speechmodel.PCM16Mono(24000)),
		Realtime: realtime.NewManager(realtime.Config{
			URL:    "ws" + strings.TrimPrefix(upstream.URL, "http"),
			APIKey: "sk-test",
		}, lookup),
		MaxSessionDuration: 30 * time.Minute,
	})

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	h.srv = httptest.NewServer(r)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) clock() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.clockMu.Lock()
	h.now = h.now.Add(d)
	h.clockMu.Unlock()
}

func (h *harness) token(userID string) string {
	token, err := h.verifier.Issue(userID, time.Hour)
	require.NoError(h.t, err)
	return token
}

func (h *harness) dial(query string) *websocket.Conn {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *harness) connect(userID string) *websocket.Conn {
	return h.dial("?token=" + h.token(userID))
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected close frame, got %v", err)
		return closeErr.Code
	}
}

func TestMissingTokenClosesWith4001(t *testing.T) {
	h := newHarness(t)
	conn := h.dial("")
	assert.Equal(t, auth.CloseMissingToken, closeCode(t, conn))
	assert.Zero(t, h.registry.Count())
}

func TestInvalidTokenClosesWith4003(t *testing.T) {
	h := newHarness(t)
	conn := h.dial("?token=not-a-jwt")
	assert.Equal(t, auth.CloseInvalidToken, closeCode(t, conn))
	assert.Zero(t, h.registry.Count())
}

func TestMalformedFrameIsRecoverable(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("u1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_chunk","data":"%%%"}`)))
	msg := read(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "INVALID_MESSAGE", msg["code"])
	assert.Equal(t, true, msg["recoverable"])

	send(t, conn, map[string]any{"type": "end_turn"})
	msg = read(t, conn)
	assert.Equal(t, "NO_ACTIVE_SESSION", msg["code"])
}

func TestRealtimeFreeSessionIsReady(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("u1")

	send(t, conn, map[string]any{"type": "start_session", "mode": "realtime"})
	msg := read(t, conn)
	assert.Equal(t, "session_ready", msg["type"])
	assert.Equal(t, "realtime", msg["mode"])
	assert.NotEmpty(t, msg["sessionId"])
	assert.Equal(t, 1, h.registry.Count())
}

func TestRealtimeCapReachedCreatesNoSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Increment(context.Background(), "u1", usage.DayKey(time.Now()), usage.Delta{RealtimeMinutes: 30})
	require.NoError(t, err)
	conn := h.connect("u1")

	send(t, conn, map[string]any{"type": "start_session", "mode": "realtime", "sessionType": "vent_session"})
	msg := read(t, conn)
	assert.Equal(t, "usage_limit", msg["type"])
	assert.Equal(t, "realtime_minutes", msg["limitType"])
	assert.NotEmpty(t, msg["suggestion"])
	assert.Zero(t, h.registry.Count())
}

func TestStandardTurnAndSave(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("u1")

	send(t, conn, map[string]any{"type": "start_session", "mode": "standard"})
	ready := read(t, conn)
	require.Equal(t, "session_ready", ready["type"])
	assert.Equal(t, "standard", ready["mode"])

	send(t, conn, map[string]any{"type": "audio_chunk", "data": base64.StdEncoding.EncodeToString(make([]byte, 960))})
	send(t, conn, map[string]any{"type": "end_turn"})

	user := read(t, conn)
	assert.Equal(t, "transcript_delta", user["type"])
	assert.Equal(t, "user", user["speaker"])
	assert.Equal(t, "I went running", user["delta"])
	assistant := read(t, conn)
	assert.Equal(t, "assistant", assistant["speaker"])
	assert.Equal(t, "Tell me more.", assistant["delta"])
	audio := read(t, conn)
	assert.Equal(t, "audio_response", audio["type"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pcm")), audio["data"])

	send(t, conn, map[string]any{"type": "end_session", "saveOptions": map[string]any{"save": true, "title": "Run"}})
	saved := read(t, conn)
	assert.Equal(t, "session_saved", saved["type"])
	assert.Equal(t, true, saved["success"])
	assert.NotEmpty(t, saved["entryId"])
	assert.Zero(t, h.registry.Count())

	entries, err := h.journal.RecentEntries(context.Background(), "u1", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "User: I went running")
}

func TestGuidedStandardSessionOpensWithPrompt(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("u1")

	send(t, conn, map[string]any{"type": "start_session", "mode": "realtime", "sessionType": "gratitude"})
	ready := read(t, conn)
	assert.Equal(t, "standard", ready["mode"])

	var prompts []map[string]any
	for {
		msg := read(t, conn)
		if msg["type"] == "audio_response" {
			break
		}
		if msg["type"] == "guided_prompt" {
			prompts = append(prompts, msg)
		}
	}
	require.Len(t, prompts, 2)
	assert.Equal(t, true, prompts[0]["isOpening"])
}

func TestReconnectResumesAndDisconnectEnds(t *testing.T) {
	h := newHarness(t)
	first := h.connect("u1")
	send(t, first, map[string]any{"type": "start_session", "mode": "standard"})
	ready := read(t, first)

	second := h.connect("u1")
	send(t, second, map[string]any{"type": "start_session", "mode": "standard"})
	resumed := read(t, second)
	assert.Equal(t, ready["sessionId"], resumed["sessionId"])
	assert.Equal(t, true, resumed["resumed"])

	// The superseded socket going away must not end the resumed session.
	require.NoError(t, first.Close())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.registry.Count())

	require.NoError(t, second.Close())
	assert.Eventually(t, func() bool { return h.registry.Count() == 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestTokenRefreshForAnotherUserCloses(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("u1")

	send(t, conn, map[string]any{"type": "token_refresh", "token": h.token("u1")})
	send(t, conn, map[string]any{"type": "token_refresh", "token": h.token("u2")})
	msg := read(t, conn)
	assert.Equal(t, "TOKEN_INVALID", msg["code"])
	assert.Equal(t, false, msg["recoverable"])
	assert.Equal(t, auth.CloseInvalidToken, closeCode(t, conn))
}

func TestSessionDurationCapEndsSession(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("u1")
	send(t, conn, map[string]any{"type": "start_session", "mode": "standard"})
	read(t, conn)

	h.advance(31 * time.Minute)
	send(t, conn, map[string]any{"type": "end_turn"})
	msg := read(t, conn)
	assert.Equal(t, "usage_limit", msg["type"])
	assert.Equal(t, "session_duration", msg["limitType"])
	assert.Zero(t, h.registry.Count())

	record, err := h.ledger.Get(context.Background(), "u1", usage.DayKey(time.Now()))
	require.NoError(t, err)
	assert.InDelta(t, 31, record.StandardMinutes, 0.01)
}

func TestRestoreTranscriptKeepsSequence(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("u1")
	send(t, conn, map[string]any{"type": "start_session", "mode": "standard"})
	read(t, conn)

	send(t, conn, map[string]any{"type": "restore_transcript", "content": "User: hello", "sequenceId": 7})
	send(t, conn, map[string]any{"type": "audio_chunk", "data": base64.StdEncoding.EncodeToString(make([]byte, 320))})
	send(t, conn, map[string]any{"type": "end_turn"})
	user := read(t, conn)
	assert.Equal(t, float64(8), user["sequenceId"])
}

func TestRestoreTranscriptBehindCounterStillReplacesContent(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("u1")
	send(t, conn, map[string]any{"type": "start_session", "mode": "standard"})
	read(t, conn)

	send(t, conn, map[string]any{"type": "restore_transcript", "content": "User: from my phone", "sequenceId": 0})
	send(t, conn, map[string]any{"type": "audio_chunk", "data": base64.StdEncoding.EncodeToString(make([]byte, 320))})
	send(t, conn, map[string]any{"type": "end_turn"})
	user := read(t, conn)
	assert.Equal(t, float64(1), user["sequenceId"])
	for i := 0; i < 2; i++ {
		read(t, conn)
	}

	send(t, conn, map[string]any{"type": "end_session", "saveOptions": map[string]any{"save": true}})
	assert.Equal(t, "session_saved", read(t, conn)["type"])
	entries, err := h.journal.RecentEntries(context.Background(), "u1", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "User: from my phone\nUser: I went running")
}

func TestSaveWithNothingSaidReportsFailure(t *testing.T) {
	h := newHarness(t)
	conn := h.connect("u1")
	send(t, conn, map[string]any{"type": "start_session", "mode": "standard"})
	read(t, conn)

	send(t, conn, map[string]any{"type": "end_session", "saveOptions": map[string]any{"save": true}})
	saved := read(t, conn)
	assert.Equal(t, "session_saved", saved["type"])
	assert.Equal(t, false, saved["success"])
	failure := read(t, conn)
	assert.Equal(t, "error", failure["type"])
	assert.Equal(t, "SAVE_FAILED", failure["code"])
	assert.Equal(t, true, failure["recoverable"])
	assert.Zero(t, h.registry.Count())
}
