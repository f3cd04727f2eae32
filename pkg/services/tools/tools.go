// Package tools holds the functions exposed to the chat model. Each tool is
// a thin wrapper over an external API that reshapes the response into text
// the model can cite.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumen-search/backend/pkg/services/llm"
)

type Tool interface {
	// Name is the function name the model calls.
	Name() string
	// Service is the receipt name recorded when the tool runs.
	Service() llm.ServiceName
	// Pro reports whether the tool requires an active subscription.
	Pro() bool
	// Definition is the JSON Schema function definition sent to the model.
	Definition() llm.FunctionTool
	// Call runs the tool with the model's arguments.
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

var (
	ErrUnknownTool = fmt.Errorf("unknown tool")
	ErrProRequired = fmt.Errorf("tool requires a pro subscription")
)

type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Definitions returns the function definitions visible to a user.
// Premium tools are omitted for free users so the model never calls them.
func (r *Registry) Definitions(pro bool) []llm.FunctionTool {
	defs := make([]llm.FunctionTool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		if t.Pro() && !pro {
			continue
		}
		defs = append(defs, t.Definition())
	}
	return defs
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch runs the tool named by the call, enforcing pro gating.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall, pro bool) (string, error) {
	t, ok := r.tools[call.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	if t.Pro() && !pro {
		return "", fmt.Errorf("%w: %s", ErrProRequired, call.Name)
	}
	return t.Call(ctx, call.Arguments)
}

// schema builds a flat object schema for tool parameters.
func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func functionTool(name, description string, parameters map[string]any) llm.FunctionTool {
	return llm.FunctionTool{
		Type: "function",
		Function: llm.FunctionToolDef{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
