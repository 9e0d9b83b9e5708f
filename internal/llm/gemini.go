package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
// It only focuses on the API call itself. Cross-cutting concerns
// (rate limiting, retries, logging) are applied via Middleware.
type GeminiClient struct {
	cli         *genai.Client
	model       string
	temperature float32
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, NewPermanentError(fmt.Errorf("llm: gemini api key is empty"))
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model, temperature: 0.2}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

// Complete sends the conversation. With tools offered the model may answer
// with function calls; otherwise JSON output is requested and decoded with
// ParseTurn.
func (g *GeminiClient) Complete(ctx context.Context, msgs []Message, tools []ToolSpec) (*Response, error) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)}
	var contents []*genai.Content
	var system []string
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	if len(contents) == 0 {
		return nil, NewPermanentError(fmt.Errorf("llm: no user content to send"))
	}
	if len(tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(tools)}}
	} else {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}
	out := &Response{}
	if resp.UsageMetadata != nil {
		out.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	var text strings.Builder
	var calls []ToolCall
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.FunctionCall != nil {
			args, _ := json.Marshal(p.FunctionCall.Args)
			calls = append(calls, ToolCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Arguments: args})
			continue
		}
		if p.Text != "" && !p.Thought {
			text.WriteString(p.Text)
		}
	}
	out.Raw = text.String()
	if len(calls) > 0 {
		raw, _ := json.Marshal(map[string]any{"action": "tool_calls", "thought": out.Raw, "tool_calls": calls})
		out.Raw = string(raw)
		out.Turn = ToolCalls{Thought: strings.TrimSpace(text.String()), Calls: calls}
		return out, nil
	}
	if strings.TrimSpace(out.Raw) == "" {
		return nil, ErrEmptyResponse
	}
	out.Turn = ParseTurn(out.Raw)
	return out, nil
}

func functionDeclarations(tools []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
		for _, p := range t.Params {
			schema.Properties[p.Name] = paramSchema(p)
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func paramSchema(p ParamSpec) *genai.Schema {
	switch p.Type {
	case "integer":
		return &genai.Schema{Type: genai.TypeInteger, Description: p.Description}
	case "array":
		return &genai.Schema{Type: genai.TypeArray, Description: p.Description, Items: &genai.Schema{Type: genai.TypeString}}
	default:
		return &genai.Schema{Type: genai.TypeString, Description: p.Description}
	}
}
