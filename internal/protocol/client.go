// Package protocol defines the relay's WebSocket messages. Inbound frames are
// decoded into exactly one typed variant or a DecodeError; decoding never panics.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhouzirui/z-journal/backend/internal/model/session"
)

// Client message types.
const (
	TypeStartSession      = "start_session"
	TypeAudioChunk        = "audio_chunk"
	TypeEndTurn           = "end_turn"
	TypeEndSession        = "end_session"
	TypeTokenRefresh      = "token_refresh"
	TypeRestoreTranscript = "restore_transcript"
)

// DecodeError describes why an inbound frame was rejected.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func invalid(message, param string) *DecodeError {
	return &DecodeError{Code: CodeInvalidMessage, Message: message, Param: param}
}

// ClientMessage is implemented by every inbound variant.
type ClientMessage interface {
	MessageType() string
}

// StartSession asks for a session. An empty Mode means realtime.
type StartSession struct {
	Mode        session.Mode `json:"mode"`
	SessionType string       `json:"sessionType,omitempty"`
}

// AudioChunk carries raw 16-bit mono PCM. Audio holds the decoded bytes.
type AudioChunk struct {
	Data  string `json:"data"`
	Audio []byte `json:"-"`
}

// EndTurn closes the current user utterance.
type EndTurn struct{}

// SaveOptions controls whether an ended session becomes a journal entry.
type SaveOptions struct {
	Save  bool     `json:"save"`
	Title string   `json:"title,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// EndSession ends the live session.
type EndSession struct {
	SaveOptions *SaveOptions `json:"saveOptions,omitempty"`
}

// TokenRefresh replaces the connection's bearer token.
type TokenRefresh struct {
	Token string `json:"token"`
}

// RestoreTranscript resumes a transcript the client kept across a reconnect.
type RestoreTranscript struct {
	Content    string `json:"content"`
	SequenceID int64  `json:"sequenceId"`
}

func (StartSession) MessageType() string      { return TypeStartSession }
func (AudioChunk) MessageType() string        { return TypeAudioChunk }
func (EndTurn) MessageType() string           { return TypeEndTurn }
func (EndSession) MessageType() string        { return TypeEndSession }
func (TokenRefresh) MessageType() string      { return TypeTokenRefresh }
func (RestoreTranscript) MessageType() string { return TypeRestoreTranscript }

// DecodeClient parses and validates one inbound frame. Frames carry their
// fields at the top level next to "type".
func DecodeClient(data []byte) (ClientMessage, *DecodeError) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, invalid("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, invalid("message type is required", "type")
	}

	switch typ {
	case TypeStartSession:
		var msg StartSession
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalid("invalid start_session payload", "")
		}
		msg.Mode = session.Mode(strings.ToLower(strings.TrimSpace(string(msg.Mode))))
		if msg.Mode == "" {
			msg.Mode = session.ModeRealtime
		}
		if !msg.Mode.Valid() {
			return nil, invalid("mode must be realtime or standard", "mode")
		}
		msg.SessionType = strings.TrimSpace(msg.SessionType)
		return msg, nil

	case TypeAudioChunk:
		var msg AudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalid("invalid audio_chunk payload", "")
		}
		if msg.Data == "" {
			return nil, invalid("audio data is required", "data")
		}
		audio, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil || len(audio) == 0 {
			return nil, invalid("audio data must be base64", "data")
		}
		msg.Audio = audio
		return msg, nil

	case TypeEndTurn:
		return EndTurn{}, nil

	case TypeEndSession:
		var msg EndSession
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalid("invalid end_session payload", "")
		}
		return msg, nil

	case TypeTokenRefresh:
		var msg TokenRefresh
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalid("invalid token_refresh payload", "")
		}
		msg.Token = strings.TrimSpace(msg.Token)
		if msg.Token == "" {
			return nil, invalid("token is required", "token")
		}
		return msg, nil

	case TypeRestoreTranscript:
		var msg RestoreTranscript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, invalid("invalid restore_transcript payload", "")
		}
		if msg.SequenceID < 0 {
			return nil, invalid("sequenceId must not be negative", "sequenceId")
		}
		return msg, nil

	default:
		return nil, invalid("unsupported message type", "type")
	}
}
