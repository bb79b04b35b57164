package journal

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/zhouzirui/z-journal/backend/internal/model/chat"
	model "github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

// MemoryToolName is the function name the models call.
const MemoryToolName = "search_memories"

const maxToolResults = 5

// MemoryLookup is the memory search tool offered to both pipelines.
type MemoryLookup struct {
	searcher MemorySearcher
}

// NewMemoryLookup wraps a searcher as a tool.
func NewMemoryLookup(searcher MemorySearcher) *MemoryLookup {
	return &MemoryLookup{searcher: searcher}
}

// Definition describes the tool's arguments.
func (t *MemoryLookup) Definition() chat.Tool {
	return chat.Tool{
		Name:        MemoryToolName,
		Description: "Search the user's past journal entries for memories related to a topic, person, place or time.",
		Parameters: map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look for, in the user's words.",
			},
			"date_hint": map[string]any{
				"type":        "string",
				"description": "Optional time reference such as \"last week\" or \"2024-05\".",
			},
			"entity_type": map[string]any{
				"type":        "string",
				"description": "Optional kind of thing being searched for.",
				"enum":        []string{"person", "place", "event", "goal", "feeling"},
			},
		},
		Required: []string{"query"},
	}
}

// Execute runs the tool with the model's JSON arguments and returns the JSON
// tool output. Failures are reported inside the output so the model can
// answer without the memory.
func (t *MemoryLookup) Execute(ctx context.Context, userID, arguments string) string {
	var query model.MemoryQuery
	if err := json.Unmarshal([]byte(arguments), &query); err != nil || strings.TrimSpace(query.Query) == "" {
		return toolOutput(map[string]any{"error": "invalid arguments: query is required"})
	}
	if t == nil || t.searcher == nil {
		return toolOutput(map[string]any{"results": []model.MemoryResult{}})
	}

	results, err := t.searcher.SearchMemories(ctx, userID, query)
	if err != nil {
		log.Printf("[journal] memory search failed user=%s: %v", userID, err)
		return toolOutput(map[string]any{"error": "memory search is unavailable right now"})
	}
	if len(results) > maxToolResults {
		results = results[:maxToolResults]
	}
	if results == nil {
		results = []model.MemoryResult{}
	}
	return toolOutput(map[string]any{"results": results})
}

func toolOutput(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return `{"error":"unencodable tool output"}`
	}
	return string(raw)
}
