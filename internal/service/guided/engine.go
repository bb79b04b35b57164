// Package guided drives scripted multi-prompt sessions. Every function here is
// pure over *guided.State; callers own persistence and locking.
package guided

import (
	"fmt"
	"strings"
	"time"

	model "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	"github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

// Fallback phrases used when the context snapshot has nothing to substitute.
const (
	fallbackGoals      = "the things that matter to you"
	fallbackSituations = "what's been going on lately"
	fallbackHighlight  = "how your day went"
	fallbackMood       = "a little uneven"
)

const followUpSuffix = "_followup"

// Result reports what ProcessResponse did with an answer.
type Result struct {
	FollowUp string
	Complete bool
}

// NewState starts a guided session for sessionType. It returns nil when no
// definition is authored for that type; callers fall back to free-form.
func NewState(store model.Store, sessionType string, snapshot *journal.ConversationContext, now time.Time) *model.State {
	if store == nil || strings.TrimSpace(sessionType) == "" {
		return nil
	}
	def, ok := store.FindByType(sessionType)
	if !ok {
		return nil
	}
	return &model.State{
		Definition:         def,
		Context:            snapshot,
		CurrentPromptIndex: -1,
		Responses:          make(map[string]string),
		StartedAt:          now,
	}
}

// NextPrompt returns what should be asked next, or nil once the closing
// message has been delivered.
func NextPrompt(state *model.State) *model.Step {
	if state == nil || state.Definition == nil {
		return nil
	}
	def := state.Definition
	total := len(def.Prompts)

	if state.WaitingForFollowUp && state.PendingFollowUp != "" {
		return &model.Step{
			PromptID:     promptID(def, state.CurrentPromptIndex),
			Prompt:       state.PendingFollowUp,
			IsFollowUp:   true,
			PromptIndex:  state.CurrentPromptIndex,
			TotalPrompts: total,
		}
	}

	if state.CurrentPromptIndex < 0 {
		state.CurrentPromptIndex = 0
		return &model.Step{
			Prompt:       def.Opening,
			IsOpening:    true,
			PromptIndex:  0,
			TotalPrompts: total,
		}
	}

	for i := state.CurrentPromptIndex; i < total; i++ {
		prompt := def.Prompts[i]
		if shouldSkip(prompt, state) {
			continue
		}
		state.CurrentPromptIndex = i
		return &model.Step{
			PromptID:     prompt.ID,
			Prompt:       Render(prompt.Text, state.Context, state.StartedAt),
			PromptIndex:  i,
			TotalPrompts: total,
		}
	}

	if state.CurrentPromptIndex < total {
		state.CurrentPromptIndex = total
	}
	if state.ClosingDelivered {
		return nil
	}
	state.ClosingDelivered = true
	return &model.Step{
		Prompt:       def.Closing,
		IsClosing:    true,
		PromptIndex:  total,
		TotalPrompts: total,
	}
}

// ProcessResponse records an answer to the current prompt and advances the
// script. A follow-up is parked instead of advancing when the answer matches
// one of the prompt's trigger keywords.
func ProcessResponse(state *model.State, text string) Result {
	if state == nil || state.Definition == nil {
		return Result{}
	}
	def := state.Definition
	total := len(def.Prompts)

	if state.WaitingForFollowUp {
		if id := promptID(def, state.CurrentPromptIndex); id != "" {
			record(state, id+followUpSuffix, text)
		}
		state.WaitingForFollowUp = false
		state.PendingFollowUp = ""
		state.CurrentPromptIndex++
		return Result{Complete: state.CurrentPromptIndex >= total}
	}

	if state.CurrentPromptIndex < 0 || state.CurrentPromptIndex >= total {
		return Result{Complete: state.CurrentPromptIndex >= total}
	}

	prompt := def.Prompts[state.CurrentPromptIndex]
	record(state, prompt.ID, text)

	if followUp := matchFollowUp(prompt, text); followUp != "" {
		state.WaitingForFollowUp = true
		state.PendingFollowUp = followUp
		return Result{FollowUp: followUp}
	}

	state.CurrentPromptIndex++
	return Result{Complete: state.CurrentPromptIndex >= total}
}

// Summarize bundles the collected answers for downstream summarisation.
func Summarize(state *model.State, now time.Time) *model.Summary {
	if state == nil || state.Definition == nil {
		return nil
	}
	responses := make(map[string]string, len(state.Responses))
	ordered := make([]model.ResponsePair, 0, len(state.ResponseOrder))
	for _, id := range state.ResponseOrder {
		responses[id] = state.Responses[id]
		ordered = append(ordered, model.ResponsePair{PromptID: id, Response: state.Responses[id]})
	}
	return &model.Summary{
		SessionType:     state.Definition.Type,
		Title:           state.Definition.Title,
		Responses:       responses,
		Ordered:         ordered,
		DurationSeconds: now.Sub(state.StartedAt).Seconds(),
		Instructions:    state.Definition.OutputProcessing,
		CompletedAt:     now,
	}
}

// PlainText joins every non-empty answer, in answer order, for storage.
func PlainText(state *model.State) string {
	if state == nil {
		return ""
	}
	parts := make([]string, 0, len(state.ResponseOrder))
	for _, id := range state.ResponseOrder {
		if text := strings.TrimSpace(state.Responses[id]); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Render substitutes context placeholders in a prompt template.
func Render(template string, snapshot *journal.ConversationContext, now time.Time) string {
	goals, situations, highlight, mood := fallbackGoals, fallbackSituations, fallbackHighlight, fallbackMood
	if snapshot != nil {
		if titles := goalTitles(snapshot.ActiveGoals); len(titles) > 0 {
			goals = joinNatural(titles)
		}
		if titles := situationTitles(snapshot.OpenSituations); len(titles) > 0 {
			situations = joinNatural(titles)
		}
		if h := snapshot.YesterdayHighlight(now); h != "" {
			highlight = h
		}
		if snapshot.MoodTrend.Samples > 0 {
			mood = fmt.Sprintf("%.1f out of 10", snapshot.MoodTrend.Average)
		}
	}
	return strings.NewReplacer(
		"{goals}", goals,
		"{situations}", situations,
		"{yesterday_highlight}", highlight,
		"{mood}", mood,
	).Replace(template)
}

func shouldSkip(prompt model.Prompt, state *model.State) bool {
	for _, cond := range prompt.SkipIf {
		if conditionHolds(cond, state.Context, state.StartedAt) {
			return true
		}
	}
	return false
}

func conditionHolds(cond model.SkipCondition, snapshot *journal.ConversationContext, now time.Time) bool {
	switch cond {
	case model.SkipNoActiveGoals:
		return snapshot == nil || len(snapshot.ActiveGoals) == 0
	case model.SkipNoOpenSituations:
		return snapshot == nil || len(snapshot.OpenSituations) == 0
	case model.SkipNoYesterdayHighlight:
		return snapshot.YesterdayHighlight(now) == ""
	case model.SkipMoodAbove:
		return snapshot != nil && snapshot.MoodTrend.Samples > 0 && snapshot.MoodTrend.Average > model.HighMoodThreshold
	case model.SkipMoodBelow:
		return snapshot != nil && snapshot.MoodTrend.Samples > 0 && snapshot.MoodTrend.Average < model.LowMoodThreshold
	default:
		return false
	}
}

func matchFollowUp(prompt model.Prompt, text string) string {
	lowered := strings.ToLower(text)
	for _, followUp := range prompt.FollowUps {
		for _, keyword := range followUp.Keywords {
			if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
				return followUp.Text
			}
		}
	}
	return ""
}

func record(state *model.State, id, text string) {
	if state.Responses == nil {
		state.Responses = make(map[string]string)
	}
	if _, seen := state.Responses[id]; !seen {
		state.ResponseOrder = append(state.ResponseOrder, id)
	}
	state.Responses[id] = text
}

func promptID(def *model.Definition, index int) string {
	if index < 0 || index >= len(def.Prompts) {
		return ""
	}
	return def.Prompts[index].ID
}

func goalTitles(goals []journal.Goal) []string {
	titles := make([]string, 0, len(goals))
	for _, g := range goals {
		if t := strings.TrimSpace(g.Title); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

func situationTitles(situations []journal.Situation) []string {
	titles := make([]string, 0, len(situations))
	for _, s := range situations {
		if t := strings.TrimSpace(s.Title); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

// joinNatural renders at most three items as "a", "a and b" or "a, b and c".
func joinNatural(items []string) string {
	if len(items) > 3 {
		items = items[:3]
	}
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
