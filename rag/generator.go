package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultMaxRounds is how many chances the model gets to call tools before
// it is forced to answer in plain text.
const DefaultMaxRounds = 2

const noResponseText = "No response available"

// ToolDispatcher executes a tool invocation by name. Implemented by
// *Registry; a failed execution returns an error, which aborts the round.
type ToolDispatcher interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// messageNewer is the seam over the Anthropic client so tests can script
// model responses without the network.
type messageNewer interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Generator drives the bounded multi-round conversation with the model. It
// never touches the retrieval index directly; tools are opaque schemas plus
// a dispatcher.
type Generator struct {
	api       messageNewer
	model     anthropic.Model
	maxTokens int64
	sysPrompt string
}

func NewGenerator(client *anthropic.Client, model string, maxTokens int64, sysPrompt string) *Generator {
	return &Generator{
		api:       &client.Messages,
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
		sysPrompt: sysPrompt,
	}
}

// GenerateOpts carries the per-call knobs for Generate.
type GenerateOpts struct {
	// History is prior-session conversation flattened to text. It is
	// advisory context only: appended to the system prompt verbatim, never
	// re-validated or truncated here.
	History string

	// Tools and Dispatcher enable tool calling. Tools without a Dispatcher
	// means the model can request invocations but nothing can run them.
	Tools      []ToolDefinition
	Dispatcher ToolDispatcher

	// MaxRounds bounds how many times the model may request tools.
	// Zero means DefaultMaxRounds; a negative value forces a single
	// tool-less call.
	MaxRounds int
}

// Generate runs the round loop and returns the final answer text.
//
// Termination: the model answers in plain text, the round budget runs out
// (one final tool-less call), a tool fails (apology text, no further model
// calls), or a model call itself fails — the only case that returns an
// error, so provider outages stay distinguishable from tool faults.
func (g *Generator) Generate(ctx context.Context, query string, opts GenerateOpts) (string, error) {
	system := g.sysPrompt
	if opts.History != "" {
		system = fmt.Sprintf("%s\n\nPrevious conversation:\n%s", g.sysPrompt, opts.History)
	}

	msgs := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(query)),
	}

	rounds := opts.MaxRounds
	if rounds == 0 {
		rounds = DefaultMaxRounds
	}
	if rounds < 0 {
		resp, err := g.call(ctx, msgs, system, nil)
		if err != nil {
			return "", fmt.Errorf("rag: model call failed: %w", err)
		}
		return firstText(resp), nil
	}

	tools := toolUnionParams(opts.Tools)

	for round := 1; round <= rounds; round++ {
		resp, err := g.call(ctx, msgs, system, tools)
		if err != nil {
			return "", fmt.Errorf("rag: model call failed: %w", err)
		}

		if resp.StopReason != anthropic.StopReasonToolUse {
			return firstText(resp), nil
		}

		// Tool use requested but nothing can execute it.
		if opts.Dispatcher == nil {
			if text := firstText(resp); text != "" {
				return text, nil
			}
			return noResponseText, nil
		}

		// The model's own tool-invocation turn goes into the conversation
		// unchanged, then every requested invocation runs sequentially in
		// emission order.
		msgs = append(msgs, assistantTurn(resp))

		results, err := dispatchAll(ctx, resp, opts.Dispatcher)
		if err != nil {
			return fmt.Sprintf("I encountered an error while searching: %s", err), nil
		}
		if len(results) > 0 {
			msgs = append(msgs, anthropic.NewUserMessage(results...))
		}
	}

	// Budget exhausted: one final call with no tools attached, forcing a
	// terminal natural-language answer.
	resp, err := g.call(ctx, msgs, system, nil)
	if err != nil {
		return "", fmt.Errorf("rag: model call failed: %w", err)
	}
	return firstText(resp), nil
}

func (g *Generator) call(
	ctx context.Context,
	msgs []anthropic.MessageParam,
	system string,
	tools []anthropic.ToolUnionParam,
) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    msgs,
	}

	if len(tools) > 0 {
		params.Tools = tools
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	return g.api.New(ctx, params)
}

// dispatchAll executes every tool_use block in resp in order, fail-fast: a
// single failing invocation aborts the batch so the round never folds
// partial results back to the model.
func dispatchAll(ctx context.Context, resp *anthropic.Message, d ToolDispatcher) ([]anthropic.ContentBlockParamUnion, error) {
	var results []anthropic.ContentBlockParamUnion

	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}

		out, err := d.Execute(ctx, block.Name, block.Input)
		if err != nil {
			return nil, fmt.Errorf("Tool '%s' failed: %s", block.Name, err)
		}

		results = append(results, anthropic.NewToolResultBlock(block.ID, out, false))
	}

	return results, nil
}

// assistantTurn rebuilds the model's response as an assistant message
// param. Blocks are converted by hand off the exported union fields; the
// SDK's AsAny helpers depend on raw-JSON metadata that hand-built test
// messages don't carry.
func assistantTurn(resp *anthropic.Message) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			blocks = append(blocks, anthropic.NewTextBlock(block.Text))
		case "tool_use":
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    block.ID,
					Name:  block.Name,
					Input: block.Input,
				},
			})
		}
	}
	return anthropic.NewAssistantMessage(blocks...)
}

// firstText returns the first text block of a response, or "".
func firstText(resp *anthropic.Message) string {
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}

func toolUnionParams(defs []ToolDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}

	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Desc),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.Params,
					Required:   def.Required,
				},
			},
		})
	}
	return out
}
