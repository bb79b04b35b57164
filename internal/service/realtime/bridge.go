package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	guidedmodel "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	model "github.com/zhouzirui/z-journal/backend/internal/model/session"
	"github.com/zhouzirui/z-journal/backend/internal/protocol"
	"github.com/zhouzirui/z-journal/backend/internal/service/ai"
	"github.com/zhouzirui/z-journal/backend/internal/service/guided"
	"github.com/zhouzirui/z-journal/backend/internal/service/session"
)

// ErrClosed is returned when writing to a closed bridge.
var ErrClosed = errors.New("realtime: bridge closed")

const writeWait = 10 * time.Second

// Bridge is one session's upstream connection.
type Bridge struct {
	manager *Manager
	sess    *session.Session
	conn    *websocket.Conn

	writeMu sync.Mutex

	emitMu sync.RWMutex
	emit   Emit

	readyMu      sync.Mutex
	ready        bool
	pendingBegin bool

	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
}

type handler func(b *Bridge, ev serverEvent)

// dispatch maps upstream event types to local actions; unknown events are ignored.
var dispatch = map[string]handler{
	eventSessionCreated:        (*Bridge).onSessionCreated,
	eventInputTranscription:    (*Bridge).onUserTranscript,
	eventAudioDelta:            (*Bridge).onAudioDelta,
	eventAudioTranscriptDone:   (*Bridge).onAssistantTranscript,
	eventFunctionArgumentsDone: (*Bridge).onFunctionCall,
	eventError:                 (*Bridge).onError,
}

func newBridge(m *Manager, sess *session.Session, conn *websocket.Conn, emit Emit) *Bridge {
	return &Bridge{
		manager: m,
		sess:    sess,
		conn:    conn,
		emit:    emit,
		done:    make(chan struct{}),
	}
}

// Attach redirects client messages to a new connection.
func (b *Bridge) Attach(emit Emit) {
	b.emitMu.Lock()
	b.emit = emit
	b.emitMu.Unlock()
}

func (b *Bridge) deliver(msg protocol.ServerMessage) {
	b.emitMu.RLock()
	emit := b.emit
	b.emitMu.RUnlock()
	if emit != nil && !b.sess.Ended() {
		emit(msg)
	}
}

// Done is closed once the bridge has shut down.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// AppendAudio forwards a PCM chunk upstream without local buffering.
func (b *Bridge) AppendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	b.sess.Touch(b.manager.now())
	return b.send(audioAppend{Type: "input_audio_buffer.append", Audio: base64.StdEncoding.EncodeToString(chunk)})
}

// Commit ends the user's turn. Free-form sessions also request a response;
// scripted sessions respond once the user's words are transcribed.
func (b *Bridge) Commit() error {
	if err := b.send(simpleEvent{Type: "input_audio_buffer.commit"}); err != nil {
		return err
	}
	if b.sess.IsGuided() {
		return nil
	}
	return b.send(responseCreate{Type: "response.create"})
}

// Begin voices the opening and first prompt of a scripted session.
func (b *Bridge) Begin() error {
	var turn guided.Turn
	if !b.sess.WithGuided(func(state *guidedmodel.State) { turn = guided.Begin(state) }) {
		return nil
	}
	return b.speakTurn(turn)
}

// BeginOnReady runs Begin once the upstream session has been created, so the
// client sees session_ready before the first guided prompt.
func (b *Bridge) BeginOnReady() {
	b.readyMu.Lock()
	if !b.ready {
		b.pendingBegin = true
		b.readyMu.Unlock()
		return
	}
	b.readyMu.Unlock()
	if err := b.Begin(); err != nil {
		log.Printf("[realtime] opening not voiced session=%s: %v", b.sess.ID, err)
	}
}

// Close shuts the upstream connection. It is safe to call more than once.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closing.Store(true)
		b.writeMu.Lock()
		_ = b.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = b.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		b.writeMu.Unlock()
		err = b.conn.Close()
	})
	return err
}

func (b *Bridge) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write upstream: %w", err)
	}
	return nil
}

func (b *Bridge) pump() {
	defer func() {
		b.manager.remove(b)
		b.conn.Close()
		close(b.done)
		log.Printf("[realtime] bridge closed session=%s", b.sess.ID)
	}()

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !b.closing.Load() {
				log.Printf("[realtime] upstream read error session=%s: %v", b.sess.ID, err)
				b.deliver(protocol.ErrorFrom(protocol.Upstream(protocol.CodeRealtimeError,
					"the realtime connection was lost; please restart the session", err)))
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[realtime] undecodable upstream event session=%s: %v", b.sess.ID, err)
			continue
		}
		if h, ok := dispatch[ev.Type]; ok {
			b.sess.Touch(b.manager.now())
			h(b, ev)
		}
	}
}

func (b *Bridge) onSessionCreated(serverEvent) {
	b.deliver(protocol.NewSessionReady(b.sess.ID, model.ModeRealtime, false))

	b.readyMu.Lock()
	b.ready = true
	pending := b.pendingBegin
	b.pendingBegin = false
	b.readyMu.Unlock()
	if pending {
		if err := b.Begin(); err != nil {
			log.Printf("[realtime] opening not voiced session=%s: %v", b.sess.ID, err)
		}
	}
}

func (b *Bridge) onUserTranscript(ev serverEvent) {
	text := strings.TrimSpace(ev.Transcript)
	if text == "" {
		return
	}
	entry := b.sess.AppendTranscript(model.SpeakerUser, text, b.manager.now())
	b.deliver(protocol.NewTranscriptDelta(entry))

	var turn guided.Turn
	if !b.sess.WithGuided(func(state *guidedmodel.State) { turn = guided.Advance(state, text) }) {
		return
	}
	if turn.Finished {
		// VAD does not create responses for guided sessions, so ask for one.
		if err := b.send(responseCreate{Type: "response.create"}); err != nil {
			log.Printf("[realtime] free reply failed session=%s: %v", b.sess.ID, err)
		}
		return
	}
	if err := b.speakTurn(turn); err != nil {
		log.Printf("[realtime] guided prompt failed session=%s: %v", b.sess.ID, err)
	}
}

// speakTurn announces the guided steps and asks the model to voice them.
func (b *Bridge) speakTurn(turn guided.Turn) error {
	for _, step := range turn.Steps {
		b.deliver(protocol.NewGuidedPrompt(step))
	}
	var err error
	if text := turn.Text(); text != "" {
		err = b.send(responseCreate{
			Type:     "response.create",
			Response: &responseOptions{Instructions: ai.VoicePromptInstructions(text)},
		})
	}
	if turn.Complete {
		var summary *guidedmodel.Summary
		b.sess.WithGuided(func(state *guidedmodel.State) { summary = guided.Summarize(state, b.manager.now()) })
		if summary != nil {
			b.deliver(protocol.NewGuidedSessionComplete(summary))
		}
	}
	return err
}

func (b *Bridge) onAudioDelta(ev serverEvent) {
	if ev.Delta == "" {
		return
	}
	b.deliver(protocol.NewAudioResponse(ev.Delta, ""))
}

func (b *Bridge) onAssistantTranscript(ev serverEvent) {
	text := strings.TrimSpace(ev.Transcript)
	if text == "" {
		return
	}
	entry := b.sess.AppendTranscript(model.SpeakerAssistant, text, b.manager.now())
	b.deliver(protocol.NewTranscriptDelta(entry))
}

func (b *Bridge) onFunctionCall(ev serverEvent) {
	output := `{"error":"unknown tool"}`
	if tool := b.manager.tool; tool != nil && ev.Name == tool.Definition().Name {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		output = tool.Execute(ctx, b.sess.UserID, ev.Arguments)
		cancel()
	}
	log.Printf("[realtime] tool %s executed session=%s call=%s", ev.Name, b.sess.ID, ev.CallID)

	if err := b.send(itemCreate{
		Type: "conversation.item.create",
		Item: functionItem{Type: "function_call_output", CallID: ev.CallID, Output: output},
	}); err != nil {
		log.Printf("[realtime] tool output not sent session=%s: %v", b.sess.ID, err)
		return
	}
	if err := b.send(responseCreate{Type: "response.create"}); err != nil {
		log.Printf("[realtime] continuation not requested session=%s: %v", b.sess.ID, err)
	}
}

func (b *Bridge) onError(ev serverEvent) {
	message := "the realtime backend reported an error"
	if ev.Error != nil && ev.Error.Message != "" {
		message = ev.Error.Message
	}
	log.Printf("[realtime] upstream error session=%s: %s", b.sess.ID, message)
	b.deliver(protocol.NewError(protocol.CodeRealtimeError, message, true))
}
