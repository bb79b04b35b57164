package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/z-journal/backend/internal/model/chat"
	guidedmodel "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	"github.com/zhouzirui/z-journal/backend/internal/model/journal"
	model "github.com/zhouzirui/z-journal/backend/internal/model/session"
)

// ErrAudioBufferFull is returned when a turn exceeds the audio buffer cap.
var ErrAudioBufferFull = errors.New("session: audio buffer full")

// Session is one user's live voice conversation. All mutable fields are
// guarded by mu; identity fields are fixed at creation.
type Session struct {
	ID          string
	UserID      string
	Mode        model.Mode
	SessionType string
	StartTime   time.Time

	maxAudioBytes int

	mu           sync.Mutex
	lastActivity time.Time
	audio        [][]byte
	audioBytes   int
	transcript   Transcript
	history      []chat.Message
	context      *journal.ConversationContext
	guided       *guidedmodel.State
	turnActive   bool
	ended        bool
}

// Info returns a snapshot of the session's public fields.
func (s *Session) Info() model.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Info{
		ID:           s.ID,
		UserID:       s.UserID,
		Mode:         s.Mode,
		SessionType:  s.SessionType,
		SequenceID:   s.transcript.SequenceID(),
		StartTime:    s.StartTime,
		LastActivity: s.lastActivity,
		Guided:       s.guided != nil,
	}
}

// Touch marks the session as active at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.mu.Unlock()
}

// LastActivity returns the last time the session saw traffic.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Ended reports whether the registry has torn the session down.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// AppendAudio buffers a PCM chunk for the current turn.
func (s *Session) AppendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxAudioBytes > 0 && s.audioBytes+len(chunk) > s.maxAudioBytes {
		return ErrAudioBufferFull
	}
	s.audio = append(s.audio, chunk)
	s.audioBytes += len(chunk)
	return nil
}

// FlushAudio takes the buffered turn audio and clears the buffer in one step.
// It returns nil when nothing is buffered.
func (s *Session) FlushAudio() []byte {
	s.mu.Lock()
	chunks, size := s.audio, s.audioBytes
	s.audio, s.audioBytes = nil, 0
	s.mu.Unlock()

	if size == 0 {
		return nil
	}
	out := make([]byte, 0, size)
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out
}

// AppendTranscript records a line and returns it with its sequence id.
func (s *Session) AppendTranscript(speaker model.Speaker, text string, at time.Time) model.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Append(speaker, text, at)
}

// RestoreTranscript resumes a transcript kept by the client.
func (s *Session) RestoreTranscript(content string, sequenceID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Restore(content, sequenceID)
}

// TranscriptText renders the full transcript.
func (s *Session) TranscriptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Text()
}

// SpokenBy joins the transcript lines of one speaker.
func (s *Session) SpokenBy(speaker model.Speaker) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lines []string
	for _, entry := range s.transcript.Entries() {
		if entry.Speaker == speaker {
			lines = append(lines, entry.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// RestoredTranscript returns transcript text carried over from a previous connection.
func (s *Session) RestoredTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Restored()
}

// SequenceID returns the last issued transcript sequence id.
func (s *Session) SequenceID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.SequenceID()
}

// AppendHistory adds messages to the chat history sent to completion.
func (s *Session) AppendHistory(messages ...chat.Message) {
	s.mu.Lock()
	s.history = append(s.history, messages...)
	s.mu.Unlock()
}

// History returns a copy of the ordered chat history.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.history...)
}

// SetContext stores the conversation context snapshot.
func (s *Session) SetContext(snapshot *journal.ConversationContext) {
	s.mu.Lock()
	s.context = snapshot
	s.mu.Unlock()
}

// Context returns the conversation context snapshot, which may be nil.
func (s *Session) Context() *journal.ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// SetGuided attaches a guided session state.
func (s *Session) SetGuided(state *guidedmodel.State) {
	s.mu.Lock()
	s.guided = state
	s.mu.Unlock()
}

// IsGuided reports whether a guided script drives this session.
func (s *Session) IsGuided() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guided != nil
}

// WithGuided runs fn with the guided state under the session lock. It reports
// false without calling fn when the session is not guided.
func (s *Session) WithGuided(fn func(state *guidedmodel.State)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.guided == nil {
		return false
	}
	fn(s.guided)
	return true
}

// TryBeginTurn claims the session for one standard-pipeline turn.
func (s *Session) TryBeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnActive || s.ended {
		return false
	}
	s.turnActive = true
	return true
}

// EndTurn releases the claim taken by TryBeginTurn.
func (s *Session) EndTurn() {
	s.mu.Lock()
	s.turnActive = false
	s.mu.Unlock()
}

func (s *Session) markEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.ended = true
	s.audio, s.audioBytes = nil, 0
	return true
}
