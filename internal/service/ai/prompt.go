package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

const maxPromptEntries = 3

// PromptTemplate defines the companion persona used for every voice session.
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// DefaultTemplate is the journaling companion persona.
var DefaultTemplate = PromptTemplate{
	SystemPrompt: `You are a warm, attentive journaling companion. The user is speaking to you out loud, so keep replies short, conversational and easy to listen to.`,
	PersonalityHints: []string{
		"Listen more than you talk and reflect back what you hear",
		"Ask at most one open question per reply",
		"Stay curious and non-judgemental; never diagnose",
		"Celebrate progress on goals without exaggeration",
	},
	ContextRules: []string{
		"Use the background below only when it is relevant to what the user says",
		"Call search_memories when the user refers to something from the past you do not see here",
		"Never read the background back verbatim",
		"Answer in plain sentences without lists or markdown",
	},
}

// BuildSystemPrompt renders the companion instructions with the user's
// context snapshot and any transcript restored from a previous connection.
func BuildSystemPrompt(tpl PromptTemplate, snapshot *journal.ConversationContext, restored string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, `%s

Personality:
- %s

Rules:
- %s

Today is %s.`,
		tpl.SystemPrompt,
		strings.Join(tpl.PersonalityHints, "\n- "),
		strings.Join(tpl.ContextRules, "\n- "),
		now.Format("Monday, January 2, 2006"),
	)

	if background := renderBackground(snapshot); background != "" {
		b.WriteString("\n\nBackground about the user:\n")
		b.WriteString(background)
	}

	if restored = strings.TrimSpace(restored); restored != "" {
		b.WriteString("\n\nThe conversation so far (resumed after a reconnect):\n")
		b.WriteString(restored)
	}
	return b.String()
}

// VoicePromptInstructions asks a speech model to say a scripted line as written.
func VoicePromptInstructions(text string) string {
	return fmt.Sprintf("Say the following to the user warmly and naturally, without adding anything else: %q", text)
}

func renderBackground(snapshot *journal.ConversationContext) string {
	if snapshot.IsEmpty() {
		return ""
	}

	var lines []string
	for i, entry := range snapshot.RecentEntries {
		if i == maxPromptEntries {
			break
		}
		summary := entry.Highlight
		if summary == "" {
			summary = truncate(entry.Content, 160)
		}
		lines = append(lines, fmt.Sprintf("- Entry on %s: %s", entry.Date.Format("Jan 2"), summary))
	}
	if len(snapshot.ActiveGoals) > 0 {
		titles := make([]string, 0, len(snapshot.ActiveGoals))
		for _, goal := range snapshot.ActiveGoals {
			titles = append(titles, goal.Title)
		}
		lines = append(lines, "- Active goals: "+strings.Join(titles, "; "))
	}
	if len(snapshot.OpenSituations) > 0 {
		titles := make([]string, 0, len(snapshot.OpenSituations))
		for _, situation := range snapshot.OpenSituations {
			titles = append(titles, situation.Title)
		}
		lines = append(lines, "- Ongoing situations: "+strings.Join(titles, "; "))
	}
	if snapshot.MoodTrend.Samples > 0 {
		trend := fmt.Sprintf("- Recent mood: %.1f/10", snapshot.MoodTrend.Average)
		if snapshot.MoodTrend.Direction != "" {
			trend += " (" + snapshot.MoodTrend.Direction + ")"
		}
		lines = append(lines, trend)
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
