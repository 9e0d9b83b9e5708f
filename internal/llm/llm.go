package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Role names a message author in a chat-completion exchange.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ParamSpec documents one argument of a tool.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string | integer | array
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ToolSpec documents a tool the model may call.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Params      []ParamSpec `json:"params,omitempty"`
}

// ToolCall is one function-style call requested by the model.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is a decoded model turn plus the raw text for transcripts.
type Response struct {
	Turn Turn
	Raw  string
	// TotalTokens is the provider-reported usage; 0 when unknown.
	TotalTokens int
}

// Client is the chat-completion contract the research controller depends on.
// Provider selection, endpoints and credentials live behind implementations.
type Client interface {
	Name() string
	Complete(ctx context.Context, msgs []Message, tools []ToolSpec) (*Response, error)
	Close() error
}

var (
	ErrEmptyResponse   = errors.New("llm: empty response from model")
	ErrScriptExhausted = errors.New("llm: scripted responses exhausted")
	ErrClientClosed    = errors.New("llm: client closed")
)

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}
