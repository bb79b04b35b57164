// Package router decides which processing backend serves a session.
package router

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"

	"github.com/zhouzirui/z-journal/backend/internal/model/guided"
	"github.com/zhouzirui/z-journal/backend/internal/model/session"
)

// DefaultPolicy routes free-form and high-interactivity guided sessions to the
// realtime backend and every other guided type to the standard pipeline. A
// client asking for standard always gets it.
const DefaultPolicy = `
package voice_mode

default mode = "standard"

mode = "standard" {
	input.requested_mode == "standard"
} else = "realtime" {
	not input.guided
} else = "realtime" {
	input.high_interactivity[_] == input.session_type
} else = "standard" {
	input.guided
}
`

// Router evaluates the mode policy.
type Router struct {
	query       rego.PreparedEvalQuery
	definitions guided.Store
	highTypes   []string
}

// New prepares policy (DefaultPolicy when empty) against the authored definitions.
func New(ctx context.Context, policy string, definitions guided.Store) (*Router, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	r := rego.New(
		rego.Query("data.voice_mode.mode"),
		rego.Module("voice_mode.rego", policy),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Router{
		query:       query,
		definitions: definitions,
		highTypes:   guided.HighInteractivityTypes(definitions),
	}, nil
}

// NewFromFile loads the policy from path.
func NewFromFile(ctx context.Context, path string, definitions guided.Store) (*Router, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return New(ctx, string(raw), definitions)
}

// Resolve maps the requested mode and session type to the mode actually used.
func (r *Router) Resolve(ctx context.Context, requested session.Mode, sessionType string) (session.Mode, error) {
	if requested == "" {
		requested = session.ModeRealtime
	}
	_, isGuided := r.definitions.FindByType(sessionType)

	input := map[string]any{
		"requested_mode":     string(requested),
		"session_type":       sessionType,
		"guided":             isGuided,
		"high_interactivity": r.highTypes,
	}
	results, err := r.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return session.ModeStandard, nil
	}

	value, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("policy returned %T, want string", results[0].Expressions[0].Value)
	}
	mode := session.Mode(value)
	if !mode.Valid() {
		return "", fmt.Errorf("policy returned unknown mode %q", value)
	}
	return mode, nil
}
