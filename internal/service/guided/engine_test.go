package guided

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	"github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func seedStore() *model.MemoryStore {
	return model.NewMemoryStore(model.Seed())
}

func TestNewStateUnknownTypeReturnsNil(t *testing.T) {
	for _, sessionType := range []string{"", "free", "does_not_exist"} {
		assert.Nil(t, NewState(seedStore(), sessionType, nil, now), sessionType)
	}
	assert.Nil(t, NewState(nil, "morning_checkin", nil, now))
}

func TestMorningCheckinSkipsGoalPromptWithoutGoals(t *testing.T) {
	snapshot := &journal.ConversationContext{
		OpenSituations: []journal.Situation{{ID: "s1", Title: "the move to Lisbon"}},
	}
	state := NewState(seedStore(), "morning_checkin", snapshot, now)
	require.NotNil(t, state)

	opening := NextPrompt(state)
	require.NotNil(t, opening)
	assert.True(t, opening.IsOpening)

	first := NextPrompt(state)
	require.NotNil(t, first)
	assert.Equal(t, "sleep", first.PromptID)

	res := ProcessResponse(state, "Slept fine, feeling good")
	assert.Empty(t, res.FollowUp)
	assert.False(t, res.Complete)

	// no yesterday highlight and no goals: both "yesterday" and "goal_check" are skipped
	next := NextPrompt(state)
	require.NotNil(t, next)
	assert.Equal(t, "situations", next.PromptID)
	assert.Equal(t, "How are things going with the move to Lisbon?", next.Prompt)
	assert.Equal(t, 3, next.PromptIndex)
}

func TestGoalPromptRendersActiveGoals(t *testing.T) {
	snapshot := &journal.ConversationContext{
		ActiveGoals: []journal.Goal{{Title: "running a 10k"}, {Title: "reading more"}},
		RecentEntries: []journal.Entry{
			{ID: "e1", Date: now.AddDate(0, 0, -1), Highlight: "the concert"},
		},
	}
	state := NewState(seedStore(), "morning_checkin", snapshot, now)
	require.NotNil(t, state)
	NextPrompt(state)
	NextPrompt(state)
	ProcessResponse(state, "ok")

	step := NextPrompt(state)
	require.NotNil(t, step)
	assert.Equal(t, "yesterday", step.PromptID)
	assert.Contains(t, step.Prompt, "the concert")

	ProcessResponse(state, "still buzzing")
	step = NextPrompt(state)
	require.NotNil(t, step)
	assert.Equal(t, "goal_check", step.PromptID)
	assert.Contains(t, step.Prompt, "running a 10k and reading more")
}

func TestFollowUpParksWithoutAdvancing(t *testing.T) {
	state := NewState(seedStore(), "morning_checkin", nil, now)
	require.NotNil(t, state)
	NextPrompt(state)
	NextPrompt(state)
	require.Equal(t, 0, state.CurrentPromptIndex)

	res := ProcessResponse(state, "Honestly I'm EXHAUSTED and a bit worried")
	assert.Equal(t, "That sounds draining. Is anything in particular keeping you up at night?", res.FollowUp)
	assert.False(t, res.Complete)
	assert.Equal(t, 0, state.CurrentPromptIndex)

	step := NextPrompt(state)
	require.NotNil(t, step)
	assert.True(t, step.IsFollowUp)
	assert.Equal(t, res.FollowUp, step.Prompt)
	assert.Equal(t, 0, state.CurrentPromptIndex)

	// the follow-up answer is never checked for further triggers
	res = ProcessResponse(state, "still tired, anxious too")
	assert.Empty(t, res.FollowUp)
	assert.Equal(t, 1, state.CurrentPromptIndex)
	assert.Equal(t, "still tired, anxious too", state.Responses["sleep_followup"])
}

func TestFullRunDeliversClosingOnceAndSummarises(t *testing.T) {
	state := NewState(seedStore(), "gratitude", nil, now)
	require.NotNil(t, state)

	var indexes []int
	answers := []string{"coffee", "", "my sister"}
	NextPrompt(state)
	for _, answer := range answers {
		step := NextPrompt(state)
		require.NotNil(t, step)
		require.False(t, step.IsClosing)
		indexes = append(indexes, state.CurrentPromptIndex)
		ProcessResponse(state, answer)
	}
	assert.Equal(t, []int{0, 1, 2}, indexes)

	closing := NextPrompt(state)
	require.NotNil(t, closing)
	assert.True(t, closing.IsClosing)
	assert.Nil(t, NextPrompt(state))
	assert.Nil(t, NextPrompt(state))

	summary := Summarize(state, now.Add(3*time.Minute))
	require.NotNil(t, summary)
	assert.Equal(t, "gratitude", summary.SessionType)
	assert.Equal(t, 180.0, summary.DurationSeconds)
	assert.Len(t, summary.Ordered, 3)
	assert.NotEmpty(t, summary.Instructions)
	assert.Equal(t, "coffee\n\nmy sister", PlainText(state))
}

func TestPromptIndexNeverDecreases(t *testing.T) {
	state := NewState(seedStore(), "evening_reflection", &journal.ConversationContext{
		MoodTrend: journal.MoodTrend{Average: 8.2, Samples: 5},
	}, now)
	require.NotNil(t, state)

	last := state.CurrentPromptIndex
	inputs := []string{"a walk", "an argument with my boss", "it ended ok", "dinner", "more", "more"}
	for _, in := range inputs {
		NextPrompt(state)
		assert.GreaterOrEqual(t, state.CurrentPromptIndex, last)
		last = state.CurrentPromptIndex
		ProcessResponse(state, in)
		assert.GreaterOrEqual(t, state.CurrentPromptIndex, last)
		last = state.CurrentPromptIndex
	}
	_, askedMoodDip := state.Responses["mood_dip"]
	assert.False(t, askedMoodDip)
}

func TestRenderFallbacks(t *testing.T) {
	got := Render("{goals} / {situations} / {yesterday_highlight} / {mood}", nil, now)
	assert.Equal(t, fallbackGoals+" / "+fallbackSituations+" / "+fallbackHighlight+" / "+fallbackMood, got)

	got = Render("{mood}", &journal.ConversationContext{MoodTrend: journal.MoodTrend{Average: 3.24, Samples: 2}}, now)
	assert.Equal(t, "3.2 out of 10", got)
}

func TestConditionHolds(t *testing.T) {
	low := &journal.ConversationContext{MoodTrend: journal.MoodTrend{Average: 3, Samples: 1}}
	noSamples := &journal.ConversationContext{MoodTrend: journal.MoodTrend{Average: 0}}

	cases := []struct {
		name     string
		cond     model.SkipCondition
		snapshot *journal.ConversationContext
		want     bool
	}{
		{"nil goals", model.SkipNoActiveGoals, nil, true},
		{"nil situations", model.SkipNoOpenSituations, nil, true},
		{"no highlight", model.SkipNoYesterdayHighlight, &journal.ConversationContext{}, true},
		{"mood below", model.SkipMoodBelow, low, true},
		{"mood above false", model.SkipMoodAbove, low, false},
		{"mood without samples", model.SkipMoodBelow, noSamples, false},
		{"unknown", model.SkipCondition("nope"), nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, conditionHolds(tc.cond, tc.snapshot, now))
		})
	}
}
