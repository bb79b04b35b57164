package journal

import "time"

// Entry is a past journal entry as returned by the context provider.
type Entry struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	Mood      *float64  `json:"mood,omitempty"`
	Highlight string    `json:"highlight,omitempty"`
}

// Goal is an active user goal.
type Goal struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Progress float64 `json:"progress,omitempty"`
}

// Situation is an ongoing life situation the user is tracking.
type Situation struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

// MoodTrend summarises recent mood scores on a 1-10 scale.
type MoodTrend struct {
	Average   float64 `json:"average"`
	Direction string  `json:"direction,omitempty"`
	Samples   int     `json:"samples"`
}

// ConversationContext is the read-only snapshot loaded once when a session starts.
type ConversationContext struct {
	RecentEntries  []Entry     `json:"recentEntries"`
	ActiveGoals    []Goal      `json:"activeGoals"`
	OpenSituations []Situation `json:"openSituations"`
	MoodTrend      MoodTrend   `json:"moodTrend"`
	LoadedAt       time.Time   `json:"loadedAt"`
}

// YesterdayHighlight returns the highlight of the entry written the calendar day
// before now, or "" when there is none.
func (c *ConversationContext) YesterdayHighlight(now time.Time) string {
	if c == nil {
		return ""
	}
	y, m, d := now.AddDate(0, 0, -1).Date()
	for _, entry := range c.RecentEntries {
		ey, em, ed := entry.Date.In(now.Location()).Date()
		if ey == y && em == m && ed == d && entry.Highlight != "" {
			return entry.Highlight
		}
	}
	return ""
}

// IsEmpty reports whether the snapshot carries no personal data at all.
func (c *ConversationContext) IsEmpty() bool {
	return c == nil || (len(c.RecentEntries) == 0 && len(c.ActiveGoals) == 0 &&
		len(c.OpenSituations) == 0 && c.MoodTrend.Samples == 0)
}

// MemoryResult is one hit returned by the memory search operation.
type MemoryResult struct {
	EntryID string    `json:"entryId"`
	Date    time.Time `json:"date"`
	Excerpt string    `json:"excerpt"`
	Score   float64   `json:"score,omitempty"`
}

// MemoryQuery is the argument set of the memory lookup tool.
type MemoryQuery struct {
	Query      string `json:"query"`
	DateHint   string `json:"date_hint,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
}

// NewEntry is a journal entry created from a finished voice session.
type NewEntry struct {
	UserID      string         `json:"userId"`
	Title       string         `json:"title,omitempty"`
	Content     string         `json:"content"`
	Tags        []string       `json:"tags,omitempty"`
	Source      string         `json:"source"`
	SessionType string         `json:"sessionType,omitempty"`
	Summary     map[string]any `json:"summary,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}
