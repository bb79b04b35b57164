// Package pipeline implements the batch voice turn: transcription, chat
// completion with one optional tool round, then speech synthesis.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/z-journal/backend/internal/model/chat"
	guidedmodel "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	model "github.com/zhouzirui/z-journal/backend/internal/model/session"
	speechmodel "github.com/zhouzirui/z-journal/backend/internal/model/speech"
	"github.com/zhouzirui/z-journal/backend/internal/protocol"
	"github.com/zhouzirui/z-journal/backend/internal/service/ai"
	"github.com/zhouzirui/z-journal/backend/internal/service/guided"
	"github.com/zhouzirui/z-journal/backend/internal/service/session"
	"github.com/zhouzirui/z-journal/backend/internal/service/speech"
)

// Emit delivers one message to the session's client.
type Emit func(msg protocol.ServerMessage)

// Tool is a function the completion model may call.
type Tool interface {
	Definition() chat.Tool
	Execute(ctx context.Context, userID, arguments string) string
}

// Standard runs turns for sessions in standard mode.
type Standard struct {
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	completer   ai.Completer
	tool        Tool
	format      speechmodel.Format
	prompt      ai.PromptTemplate
	now         func() time.Time
}

// Option customises a Standard pipeline.
type Option func(*Standard)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Standard) { s.now = now }
}

// WithPromptTemplate replaces the companion persona.
func WithPromptTemplate(tpl ai.PromptTemplate) Option {
	return func(s *Standard) { s.prompt = tpl }
}

// NewStandard wires the pipeline. tool may be nil.
func NewStandard(transcriber speech.Transcriber, synthesizer speech.Synthesizer, completer ai.Completer, tool Tool, format speechmodel.Format, opts ...Option) *Standard {
	s := &Standard{
		transcriber: transcriber,
		synthesizer: synthesizer,
		completer:   completer,
		tool:        tool,
		format:      format,
		prompt:      ai.DefaultTemplate,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin delivers the opening and first prompt of a guided session.
func (s *Standard) Begin(ctx context.Context, sess *session.Session, emit Emit) {
	var turn guided.Turn
	if !sess.WithGuided(func(state *guidedmodel.State) { turn = guided.Begin(state) }) {
		return
	}
	s.deliver(ctx, sess, nil, turn, emit)
}

// RunTurn processes the audio buffered since the previous turn. Events are
// emitted only after the whole turn has run; a returned *protocol.Error is
// meant for the client.
func (s *Standard) RunTurn(ctx context.Context, sess *session.Session, emit Emit) error {
	if sess.Ended() {
		return nil
	}
	if !sess.TryBeginTurn() {
		return protocol.Protocol(protocol.CodeTurnInProgress, "a turn is already being processed for this session")
	}
	defer sess.EndTurn()

	pcm := sess.FlushAudio()
	if len(pcm) == 0 {
		return nil
	}
	sess.Touch(s.now())

	text, err := s.transcriber.Transcribe(ctx, speech.WrapWAV(pcm, s.format))
	if err != nil {
		log.Printf("[pipeline] transcription failed session=%s: %v", sess.ID, err)
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Printf("[pipeline] empty transcript session=%s bytes=%d", sess.ID, len(pcm))
		return nil
	}

	userEntry := sess.AppendTranscript(model.SpeakerUser, text, s.now())
	sess.AppendHistory(chat.Message{Role: chat.RoleUser, Content: text, CreatedAt: userEntry.Timestamp})

	var turn guided.Turn
	if sess.WithGuided(func(state *guidedmodel.State) { turn = guided.Advance(state, text) }) && !turn.Finished {
		s.deliver(ctx, sess, &userEntry, turn, emit)
		return nil
	}

	reply, err := s.complete(ctx, sess)
	if err != nil {
		log.Printf("[pipeline] completion failed session=%s: %v", sess.ID, err)
		if !sess.Ended() {
			emit(protocol.NewTranscriptDelta(userEntry))
		}
		return protocol.Upstream(protocol.CodeUpstreamError, "the assistant could not answer this turn", err)
	}

	s.respond(ctx, sess, &userEntry, reply, emit, nil)
	return nil
}

func (s *Standard) deliver(ctx context.Context, sess *session.Session, userEntry *model.TranscriptEntry, turn guided.Turn, emit Emit) {
	after := func() {
		for _, step := range turn.Steps {
			emit(protocol.NewGuidedPrompt(step))
		}
	}
	var summary *guidedmodel.Summary
	if turn.Complete {
		sess.WithGuided(func(state *guidedmodel.State) { summary = guided.Summarize(state, s.now()) })
	}

	reply := turn.Text()
	if reply == "" {
		if userEntry != nil && !sess.Ended() {
			emit(protocol.NewTranscriptDelta(*userEntry))
		}
	} else {
		s.respond(ctx, sess, userEntry, reply, emit, after)
	}
	if summary != nil && !sess.Ended() {
		emit(protocol.NewGuidedSessionComplete(summary))
	}
}

// respond records the assistant reply, synthesises it and emits the turn in
// order: user delta, assistant delta, extra messages, audio.
func (s *Standard) respond(ctx context.Context, sess *session.Session, userEntry *model.TranscriptEntry, reply string, emit Emit, extra func()) {
	assistantEntry := sess.AppendTranscript(model.SpeakerAssistant, reply, s.now())
	sess.AppendHistory(chat.Message{Role: chat.RoleAssistant, Content: reply, CreatedAt: assistantEntry.Timestamp})

	var data string
	audio, err := s.synthesizer.Synthesize(ctx, reply)
	if err != nil {
		log.Printf("[pipeline] synthesis failed session=%s, delivering text only: %v", sess.ID, err)
	} else {
		data = base64.StdEncoding.EncodeToString(audio)
	}

	if sess.Ended() {
		log.Printf("[pipeline] session %s ended mid-turn, dropping delivery", sess.ID)
		return
	}
	if userEntry != nil {
		emit(protocol.NewTranscriptDelta(*userEntry))
	}
	emit(protocol.NewTranscriptDelta(assistantEntry))
	if extra != nil {
		extra()
	}
	emit(protocol.NewAudioResponse(data, reply))
}

// complete asks the model for a reply. A tool request is honoured once and
// followed by exactly one more completion.
func (s *Standard) complete(ctx context.Context, sess *session.Session) (string, error) {
	req := ai.Request{
		System:  ai.BuildSystemPrompt(s.prompt, sess.Context(), sess.RestoredTranscript(), s.now()),
		History: sess.History(),
	}
	if s.tool != nil {
		req.Tools = []chat.Tool{s.tool.Definition()}
	}

	msg, err := s.completer.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if len(msg.ToolCalls) == 0 {
		return strings.TrimSpace(msg.Content), nil
	}

	results := make([]chat.Message, 0, len(msg.ToolCalls)+1)
	results = append(results, msg)
	for _, call := range msg.ToolCalls {
		output := `{"error":"unknown tool"}`
		if s.tool != nil && call.Name == s.tool.Definition().Name {
			output = s.tool.Execute(ctx, sess.UserID, call.Arguments)
		}
		log.Printf("[pipeline] tool %s executed session=%s", call.Name, sess.ID)
		results = append(results, chat.Message{
			Role:       chat.RoleTool,
			Content:    output,
			ToolCallID: call.ID,
			CreatedAt:  s.now(),
		})
	}
	sess.AppendHistory(results...)

	req.History = sess.History()
	final, err := s.completer.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(final.Content)
	if reply == "" {
		return "", errors.New("no answer after tool round")
	}
	return reply, nil
}
