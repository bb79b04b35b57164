package session

import (
	"strings"
	"time"

	model "github.com/zhouzirui/z-journal/backend/internal/model/session"
)

// Transcript is the ordered, resumable log of a session. It is not safe for
// concurrent use; Session guards it.
type Transcript struct {
	restored   string
	entries    []model.TranscriptEntry
	sequenceID int64
}

// Append records text and returns the entry with the next sequence id.
func (t *Transcript) Append(speaker model.Speaker, text string, at time.Time) model.TranscriptEntry {
	t.sequenceID++
	entry := model.TranscriptEntry{
		SequenceID: t.sequenceID,
		Speaker:    speaker,
		Text:       text,
		Timestamp:  at,
	}
	t.entries = append(t.entries, entry)
	return entry
}

// Restore replaces the log with content a client kept from an earlier
// connection and returns the resulting sequence id, which never moves back.
func (t *Transcript) Restore(content string, sequenceID int64) int64 {
	t.restored = strings.TrimSpace(content)
	t.entries = nil
	t.sequenceID = max(t.sequenceID, sequenceID)
	return t.sequenceID
}

// SequenceID returns the last issued sequence id.
func (t *Transcript) SequenceID() int64 { return t.sequenceID }

// Restored returns transcript text carried over by Restore.
func (t *Transcript) Restored() string { return t.restored }

// Entries returns a copy of the entries appended since the last restore.
func (t *Transcript) Entries() []model.TranscriptEntry {
	return append([]model.TranscriptEntry(nil), t.entries...)
}

// Text renders the transcript as "User: ..." / "Assistant: ..." lines.
func (t *Transcript) Text() string {
	var b strings.Builder
	if t.restored != "" {
		b.WriteString(t.restored)
	}
	for _, entry := range t.entries {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(speakerLabel(entry.Speaker))
		b.WriteString(": ")
		b.WriteString(entry.Text)
	}
	return b.String()
}

func speakerLabel(s model.Speaker) string {
	switch s {
	case model.SpeakerUser:
		return "User"
	case model.SpeakerAssistant:
		return "Assistant"
	default:
		return "System"
	}
}
