// Package llm provides the abstract contract to the external completion
// service. The service returns a structured {reply, choices?} document or a
// transport/timeout failure; nothing it produces is trusted until the
// validator has seen it.
package llm

import (
	"context"
	"encoding/json"
)

// Message is one prompt message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries everything the completion service needs for one
// model-governed turn.
type CompletionRequest struct {
	Locale   string    `json:"locale"`
	Stage    string    `json:"stage"`
	Messages []Message `json:"messages"`
}

// ChoiceOption is a choice as proposed by the model, before validation.
type ChoiceOption struct {
	Token string `json:"token"`
	Label string `json:"label"`
}

// CompletionReply is the parsed shape of a well-formed completion document.
type CompletionReply struct {
	Reply   string         `json:"reply"`
	Choices []ChoiceOption `json:"choices,omitempty"`
}

// CompletionClient is the interface to the completion service. Complete
// returns the raw response document; parsing and schema validation belong
// to the validator, never here.
type CompletionClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (json.RawMessage, error)
}

// Ensure implementations satisfy the interface.
var (
	_ CompletionClient = (*Client)(nil)
	_ CompletionClient = (*MockClient)(nil)
)
