package protocol

import (
	"time"

	guidedmodel "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	"github.com/zhouzirui/z-journal/backend/internal/model/session"
	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
)

// Server message types.
const (
	TypeSessionReady          = "session_ready"
	TypeTranscriptDelta       = "transcript_delta"
	TypeAudioResponse         = "audio_response"
	TypeGuidedPrompt          = "guided_prompt"
	TypeGuidedSessionComplete = "guided_session_complete"
	TypeUsageLimit            = "usage_limit"
	TypeError                 = "error"
	TypeSessionSaved          = "session_saved"
)

// ServerMessage is implemented by every outbound variant.
type ServerMessage interface {
	MessageType() string
}

type SessionReady struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId"`
	Mode      session.Mode `json:"mode"`
	Resumed   bool         `json:"resumed,omitempty"`
}

type TranscriptDelta struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta"`
	Speaker    session.Speaker `json:"speaker"`
	Timestamp  time.Time       `json:"timestamp"`
	SequenceID int64           `json:"sequenceId"`
}

// AudioResponse carries base64 PCM. Data is empty when synthesis failed.
type AudioResponse struct {
	Type       string `json:"type"`
	Data       string `json:"data"`
	Transcript string `json:"transcript,omitempty"`
}

type GuidedPrompt struct {
	Type         string `json:"type"`
	PromptID     string `json:"promptId,omitempty"`
	Prompt       string `json:"prompt"`
	IsOpening    bool   `json:"isOpening"`
	IsClosing    bool   `json:"isClosing"`
	PromptIndex  int    `json:"promptIndex"`
	TotalPrompts int    `json:"totalPrompts"`
}

type GuidedSessionComplete struct {
	Type        string               `json:"type"`
	SessionType string               `json:"sessionType"`
	Responses   map[string]string    `json:"responses"`
	Summary     *guidedmodel.Summary `json:"summary"`
}

type UsageLimit struct {
	Type       string          `json:"type"`
	LimitType  usage.LimitType `json:"limitType"`
	Suggestion string          `json:"suggestion"`
}

type ErrorMessage struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type SessionSaved struct {
	Type    string `json:"type"`
	EntryID string `json:"entryId,omitempty"`
	Success bool   `json:"success"`
}

func (SessionReady) MessageType() string          { return TypeSessionReady }
func (TranscriptDelta) MessageType() string       { return TypeTranscriptDelta }
func (AudioResponse) MessageType() string         { return TypeAudioResponse }
func (GuidedPrompt) MessageType() string          { return TypeGuidedPrompt }
func (GuidedSessionComplete) MessageType() string { return TypeGuidedSessionComplete }
func (UsageLimit) MessageType() string            { return TypeUsageLimit }
func (ErrorMessage) MessageType() string          { return TypeError }
func (SessionSaved) MessageType() string          { return TypeSessionSaved }

func NewSessionReady(sessionID string, mode session.Mode, resumed bool) SessionReady {
	return SessionReady{Type: TypeSessionReady, SessionID: sessionID, Mode: mode, Resumed: resumed}
}

func NewTranscriptDelta(entry session.TranscriptEntry) TranscriptDelta {
	return TranscriptDelta{
		Type:       TypeTranscriptDelta,
		Delta:      entry.Text,
		Speaker:    entry.Speaker,
		Timestamp:  entry.Timestamp,
		SequenceID: entry.SequenceID,
	}
}

func NewAudioResponse(data, transcript string) AudioResponse {
	return AudioResponse{Type: TypeAudioResponse, Data: data, Transcript: transcript}
}

func NewGuidedPrompt(step *guidedmodel.Step) GuidedPrompt {
	return GuidedPrompt{
		Type:         TypeGuidedPrompt,
		PromptID:     step.PromptID,
		Prompt:       step.Prompt,
		IsOpening:    step.IsOpening,
		IsClosing:    step.IsClosing,
		PromptIndex:  step.PromptIndex,
		TotalPrompts: step.TotalPrompts,
	}
}

func NewGuidedSessionComplete(summary *guidedmodel.Summary) GuidedSessionComplete {
	return GuidedSessionComplete{
		Type:        TypeGuidedSessionComplete,
		SessionType: summary.SessionType,
		Responses:   summary.Responses,
		Summary:     summary,
	}
}

func NewUsageLimit(limit usage.LimitType, suggestion string) UsageLimit {
	return UsageLimit{Type: TypeUsageLimit, LimitType: limit, Suggestion: suggestion}
}

func NewError(code, message string, recoverable bool) ErrorMessage {
	return ErrorMessage{Type: TypeError, Code: code, Message: message, Recoverable: recoverable}
}

// ErrorFrom converts a classified error into its client message.
func ErrorFrom(err *Error) ErrorMessage {
	return NewError(err.Code, err.Message, err.Recoverable)
}

func NewSessionSaved(entryID string, success bool) SessionSaved {
	return SessionSaved{Type: TypeSessionSaved, EntryID: entryID, Success: success}
}
