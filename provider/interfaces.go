// Package provider defines the narrow interface the step executor calls
// into to reach an external model. The concrete adapters (network calls,
// provider-specific wire formats) are external collaborators per the
// runtime's scope — this package only defines the contract and a couple of
// reference implementations used by tests and examples.
package provider

import (
	"context"
	"time"
)

// Message is one turn of the request payload the prompt compiler produces.
// Role is "system" or "user"; CacheHint, when non-empty (e.g. "ephemeral"),
// asks a provider that supports prompt-prefix caching to treat Content as a
// stable, cacheable block.
type Message struct {
	Role      string
	Content   string
	CacheHint string
}

// ToolDescriptor is the structured-output channel: a single tool/function
// descriptor whose Parameters is the contract's JSON schema. ForcedName
// asks the provider to force selection of this descriptor rather than
// letting the model choose whether to call it.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Request is the full payload passed to a Client's Call.
type Request struct {
	ModelID     string
	Messages    []Message
	Tool        ToolDescriptor
	ForcedName  string
	Temperature *float32
	Timeout     time.Duration
}

// ToolCallResult is one structured-output invocation returned by the
// provider. Arguments is the raw JSON string of arguments.
type ToolCallResult struct {
	Name      string
	Arguments string
}

// Response is what a Client's Call returns.
type Response struct {
	ToolCalls        []ToolCallResult
	InputTokens      int
	OutputTokens     int
	ProviderSystem   string // e.g. "openai", "anthropic", "bedrock", "mock"
	ModelID          string
}

// FirstArguments returns the arguments string of the first tool call, which
// is all the step executor reads (§6: "the core reads the first").
func (r *Response) FirstArguments() (string, bool) {
	if r == nil || len(r.ToolCalls) == 0 {
		return "", false
	}
	return r.ToolCalls[0].Arguments, true
}

// Client is the single asynchronous call the core invokes. Any error —
// network, protocol, shape — is treated by the step executor as a
// parse-class failure.
type Client interface {
	Call(ctx context.Context, req Request) (*Response, error)

	// Cost estimates the USD cost of a response, or nil if unknown/free.
	Cost(resp *Response) *float64
}
