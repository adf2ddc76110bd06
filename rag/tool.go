// Package rag implements the tool-calling core of sage: the bounded
// multi-round generator that drives the Anthropic Messages API, the tool
// capability set it can dispatch to, and the registry that folds tool
// citations back to the caller.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ToolDefinition is the declarative schema handed to the model so it can
// request invocations by name. Required lists the parameter names that must
// be present; optional parameters are simply absent from it.
type ToolDefinition struct {
	Name     string               `json:"name" yaml:"name"`
	Desc     string               `json:"description" yaml:"desc"`
	Params   map[string]ToolParam `json:"params" yaml:"params"`
	Required []string             `json:"required" yaml:"required"`
}

type ToolParam struct {
	Type JSType `json:"type" yaml:"type"`
	Desc string `json:"description" yaml:"desc"`

	// if Type == JSTString it can optionally be an enumerator with specific values
	Enum []string `json:"enum,omitempty" yaml:"enum"`
}

type JSType string

const (
	JSTString  JSType = "string"
	JSTNumber  JSType = "number"
	JSTInteger JSType = "integer"
	JSTBoolean JSType = "boolean"
)

// Source is a displayable reference to the course material backing part of
// an answer. Link is nil when no deep link is known.
type Source struct {
	Text string  `json:"text"`
	Link *string `json:"link"`
}

// Tool is the closed capability set the generator can reach: each variant
// declares its schema once and executes structured arguments into
// model-readable text. Sources produced by an execution are returned
// alongside the text rather than kept on the tool, so the registry owns the
// only mutable citation state.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, args json.RawMessage) (string, []Source, error)
}

// Registry holds the available tools by name and tracks, per tool, the
// sources from its most recent execution. A registry must not be shared by
// concurrent queries: the per-tool citation slot is single-flight (System
// serializes access).
type Registry struct {
	mu      sync.Mutex
	order   []string
	tools   map[string]Tool
	sources map[string][]Source
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		sources: make(map[string][]Source),
	}
}

// Register stores a tool under its declared name.
// Returns an error on an empty or duplicate name.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("rag: tool must declare a name in its definition")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("rag: tool %q already registered", name)
	}

	r.order = append(r.order, name)
	r.tools[name] = t
	return nil
}

// Definitions returns all registered tool schemas in registration order,
// ready to attach to a model call.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute dispatches a tool invocation by name. An unknown name is a soft
// failure returned in-band, not an error: it usually means the model
// hallucinated a tool name and should be told so. The sources from the
// execution overwrite the tool's citation slot, even when empty.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.Lock()
	tool, ok := r.tools[name]
	r.mu.Unlock()

	if !ok {
		return fmt.Sprintf("Tool '%s' not found", name), nil
	}

	text, sources, err := tool.Execute(ctx, args)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.sources[name] = sources
	r.mu.Unlock()

	return text, nil
}

// LastSources returns the first nonempty citation batch found, scanning
// tools in registration order. At most one tool's sources are visible per
// answer; batches from a second tool used in the same round are dropped.
func (r *Registry) LastSources() []Source {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if s := r.sources[name]; len(s) > 0 {
			return s
		}
	}
	return nil
}

// ResetSources clears every tool's citation slot. Callers invoke this
// before each new top-level query so stale citations from a prior answer
// never leak into the next one.
func (r *Registry) ResetSources() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.sources {
		delete(r.sources, name)
	}
}
