package session

import "time"

// Mode identifies which backend processes a session's turns.
type Mode string

const (
	ModeRealtime Mode = "realtime"
	ModeStandard Mode = "standard"
)

// Valid reports whether m is a known processing mode.
func (m Mode) Valid() bool {
	return m == ModeRealtime || m == ModeStandard
}

// Speaker tags who produced a transcript line.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
)

// TranscriptEntry is one ordered line of a session transcript.
type TranscriptEntry struct {
	SequenceID int64     `json:"sequenceId"`
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Info is the read-only view of a live session exposed outside the registry.
type Info struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Mode         Mode      `json:"mode"`
	SessionType  string    `json:"sessionType,omitempty"`
	SequenceID   int64     `json:"sequenceId"`
	StartTime    time.Time `json:"startTime"`
	LastActivity time.Time `json:"lastActivity"`
	Guided       bool      `json:"guided"`
}
