package guided

import (
	"time"

	"github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

// SkipCondition names a context predicate that, when satisfied, skips a prompt.
type SkipCondition string

const (
	SkipNoActiveGoals        SkipCondition = "no_active_goals"
	SkipNoOpenSituations     SkipCondition = "no_open_situations"
	SkipNoYesterdayHighlight SkipCondition = "no_yesterday_highlight"
	SkipMoodAbove            SkipCondition = "mood_above"
	SkipMoodBelow            SkipCondition = "mood_below"
)

// Mood thresholds on the 1-10 scale used by SkipMoodAbove and SkipMoodBelow.
const (
	HighMoodThreshold = 7.0
	LowMoodThreshold  = 4.0
)

// FollowUp is asked once when the response to its prompt contains any keyword.
type FollowUp struct {
	Keywords []string `json:"keywords"`
	Text     string   `json:"text"`
}

// Prompt is one scripted question. Text may reference {goals}, {situations},
// {yesterday_highlight} and {mood}.
type Prompt struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	SkipIf    []SkipCondition `json:"skipIf,omitempty"`
	FollowUps []FollowUp      `json:"followUps,omitempty"`
}

// Definition is an authored guided session script. Definitions are immutable.
type Definition struct {
	Type              string   `json:"type"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	HighInteractivity bool     `json:"highInteractivity"`
	Opening           string   `json:"opening"`
	Closing           string   `json:"closing"`
	Prompts           []Prompt `json:"prompts"`
	OutputProcessing  string   `json:"outputProcessing"`
}

// State tracks one user's progress through a Definition.
type State struct {
	Definition         *Definition
	Context            *journal.ConversationContext
	CurrentPromptIndex int
	Responses          map[string]string
	ResponseOrder      []string
	WaitingForFollowUp bool
	PendingFollowUp    string
	ClosingDelivered   bool
	// Completed is set once completion has been reported; later answers are
	// free conversation and no longer touch the script.
	Completed bool
	StartedAt          time.Time
}

// Step is what the engine asks next.
type Step struct {
	PromptID     string `json:"promptId,omitempty"`
	Prompt       string `json:"prompt"`
	IsOpening    bool   `json:"isOpening"`
	IsClosing    bool   `json:"isClosing"`
	IsFollowUp   bool   `json:"isFollowUp,omitempty"`
	PromptIndex  int    `json:"promptIndex"`
	TotalPrompts int    `json:"totalPrompts"`
}

// ResponsePair is a prompt id with the user's answer, in answer order.
type ResponsePair struct {
	PromptID string `json:"promptId"`
	Response string `json:"response"`
}

// Summary is produced when a guided session completes.
type Summary struct {
	SessionType     string            `json:"sessionType"`
	Title           string            `json:"title"`
	Responses       map[string]string `json:"responses"`
	Ordered         []ResponsePair    `json:"ordered"`
	DurationSeconds float64           `json:"durationSeconds"`
	Instructions    string            `json:"instructions"`
	CompletedAt     time.Time         `json:"completedAt"`
}
