// Package realtime bridges a session to a streaming speech-to-speech backend
// over a single upstream WebSocket per session.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-journal/backend/internal/model/chat"
	"github.com/zhouzirui/z-journal/backend/internal/protocol"
	"github.com/zhouzirui/z-journal/backend/internal/service/ai"
	"github.com/zhouzirui/z-journal/backend/internal/service/session"
)

// ErrNotConfigured is returned by Open when no API key is set.
var ErrNotConfigured = errors.New("realtime: backend not configured")

// Emit delivers one message to the session's client.
type Emit func(msg protocol.ServerMessage)

// Tool is a function the model may call mid-conversation.
type Tool interface {
	Definition() chat.Tool
	Execute(ctx context.Context, userID, arguments string) string
}

// Config describes the upstream backend.
type Config struct {
	URL                string
	Model              string
	APIKey             string
	Voice              string
	TranscriptionModel string
	VADThreshold       float64
	PrefixPaddingMS    int
	SilenceDurationMS  int
	HandshakeTimeout   time.Duration
	Prompt             ai.PromptTemplate
}

// Manager owns the live bridges, keyed by session id.
type Manager struct {
	cfg    Config
	tool   Tool
	dialer *websocket.Dialer
	now    func() time.Time

	mu      sync.RWMutex
	bridges map[string]*Bridge
}

// NewManager creates a manager. tool may be nil.
func NewManager(cfg Config, tool Tool) *Manager {
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "whisper-1"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if cfg.Prompt.SystemPrompt == "" {
		cfg.Prompt = ai.DefaultTemplate
	}
	return &Manager{
		cfg:     cfg,
		tool:    tool,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		now:     time.Now,
		bridges: make(map[string]*Bridge),
	}
}

// Enabled reports whether Open can dial.
func (m *Manager) Enabled() bool {
	return m.cfg.APIKey != "" && m.cfg.URL != ""
}

// Open dials the backend for sess, configures the upstream session and starts
// pumping events to emit. An existing bridge for the session is replaced.
func (m *Manager) Open(ctx context.Context, sess *session.Session, emit Emit) (*Bridge, error) {
	if !m.Enabled() {
		return nil, ErrNotConfigured
	}

	endpoint, err := url.Parse(m.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	if m.cfg.Model != "" {
		q := endpoint.Query()
		q.Set("model", m.cfg.Model)
		endpoint.RawQuery = q.Encode()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := m.dialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime backend: %w", err)
	}

	b := newBridge(m, sess, conn, emit)
	if err := b.send(m.sessionUpdate(sess)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configure realtime session: %w", err)
	}

	m.mu.Lock()
	old := m.bridges[sess.ID]
	m.bridges[sess.ID] = b
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}

	go b.pump()
	log.Printf("[realtime] bridge opened session=%s user=%s", sess.ID, sess.UserID)
	return b, nil
}

func (m *Manager) sessionUpdate(sess *session.Session) sessionUpdate {
	cfg := sessionConfig{
		Modalities:              []string{"audio", "text"},
		Instructions:            ai.BuildSystemPrompt(m.cfg.Prompt, sess.Context(), sess.RestoredTranscript(), m.now()),
		Voice:                   m.cfg.Voice,
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &transcriptionModel{Model: m.cfg.TranscriptionModel},
		TurnDetection: turnDetection{
			Type:              "server_vad",
			Threshold:         m.cfg.VADThreshold,
			PrefixPaddingMS:   m.cfg.PrefixPaddingMS,
			SilenceDurationMS: m.cfg.SilenceDurationMS,
			// scripted sessions answer with their next prompt instead
			CreateResponse: !sess.IsGuided(),
		},
	}
	if m.tool != nil {
		def := m.tool.Definition()
		params := map[string]any{"type": "object", "properties": def.Parameters}
		if len(def.Required) > 0 {
			params["required"] = def.Required
		}
		cfg.Tools = []functionTool{{Type: "function", Name: def.Name, Description: def.Description, Parameters: params}}
		cfg.ToolChoice = "auto"
	}
	return sessionUpdate{Type: "session.update", Session: cfg}
}

// Get returns the live bridge for a session, or nil.
func (m *Manager) Get(sessionID string) *Bridge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bridges[sessionID]
}

// Count returns the number of live bridges.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bridges)
}

// Close tears down the bridge for a session, if any.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	b := m.bridges[sessionID]
	delete(m.bridges, sessionID)
	m.mu.Unlock()
	if b != nil {
		b.Close()
	}
}

// CloseAll tears down every bridge.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	bridges := m.bridges
	m.bridges = make(map[string]*Bridge)
	m.mu.Unlock()
	for _, b := range bridges {
		b.Close()
	}
}

// remove drops b if it is still the registered bridge for its session.
func (m *Manager) remove(b *Bridge) {
	m.mu.Lock()
	if m.bridges[b.sess.ID] == b {
		delete(m.bridges, b.sess.ID)
	}
	m.mu.Unlock()
}
