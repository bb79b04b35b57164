package guided

import (
	"strings"

	model "github.com/zhouzirui/z-journal/backend/internal/model/guided"
)

// Turn is what a guided session says after one event: the steps to deliver,
// in order, and whether the script has just finished. Finished marks a turn
// that arrived after completion and belongs to free conversation.
type Turn struct {
	Steps    []*model.Step
	Complete bool
	Finished bool
}

// Text joins the steps into one utterance.
func (t Turn) Text() string {
	parts := make([]string, 0, len(t.Steps))
	for _, step := range t.Steps {
		if text := strings.TrimSpace(step.Prompt); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Begin delivers the opening together with the first applicable prompt.
func Begin(state *model.State) Turn {
	if state.Completed {
		return Turn{Finished: true}
	}
	var turn Turn
	for i := 0; i < 2; i++ {
		step := NextPrompt(state)
		if step == nil {
			turn.Complete = true
			break
		}
		turn.Steps = append(turn.Steps, step)
		if step.IsClosing {
			turn.Complete = true
			break
		}
	}
	state.Completed = turn.Complete
	return turn
}

// Advance records answer and returns the next step. Completion is reported
// exactly once; answers after that are not recorded.
func Advance(state *model.State, answer string) Turn {
	if state.Completed {
		return Turn{Finished: true}
	}
	ProcessResponse(state, answer)
	turn := Turn{Complete: true}
	if step := NextPrompt(state); step != nil {
		turn = Turn{Steps: []*model.Step{step}, Complete: step.IsClosing}
	}
	state.Completed = turn.Complete
	return turn
}
