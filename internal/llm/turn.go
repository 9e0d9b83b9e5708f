package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Turn is the decoded shape of one model reply: exactly one of
// ToolCalls, FinalReport or Malformed.
type Turn interface {
	turnKind() string
}

// ToolCalls asks the controller to run inspection tools.
type ToolCalls struct {
	Thought  string
	Calls    []ToolCall
	Unknowns []string
}

// FinalReport proposes a candidate report (raw JSON object).
type FinalReport struct {
	Thought string
	Report  json.RawMessage
}

// Malformed is a reply that could not be decoded into either arm.
type Malformed struct {
	Raw    string
	Reason string
}

func (ToolCalls) turnKind() string   { return "tool_calls" }
func (FinalReport) turnKind() string { return "final" }
func (Malformed) turnKind() string   { return "malformed" }

// KindOf returns a short label for logs and transcripts.
func KindOf(t Turn) string {
	if t == nil {
		return "nil"
	}
	return t.turnKind()
}

// envelope is the JSON contract models are prompted to emit.
type envelope struct {
	Action      string          `json:"action,omitempty"`
	Thought     string          `json:"thought,omitempty"`
	Plan        string          `json:"plan,omitempty"`
	ToolCalls   []ToolCall      `json:"tool_calls,omitempty"`
	ToolName    string          `json:"tool_name,omitempty"`
	ToolInput   json.RawMessage `json:"tool_input,omitempty"`
	FinalReport json.RawMessage `json:"final_report,omitempty"`
	Final       json.RawMessage `json:"final,omitempty"`
	Unknowns    []string        `json:"unknowns,omitempty"`
}

// reportKeys mark a bare JSON object as a candidate report.
var reportKeys = []string{"architectureFindings", "criticalFlows", "moduleSummaries"}

// ParseTurn decodes a raw model reply. Fenced or prose-wrapped JSON is
// tolerated; anything else becomes Malformed rather than an error.
func ParseTurn(raw string) Turn {
	body := extractJSON(raw)
	if body == "" {
		return Malformed{Raw: raw, Reason: "no JSON object found"}
	}
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return Malformed{Raw: raw, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	thought := firstNonEmpty(env.Thought, env.Plan)

	calls := env.ToolCalls
	if env.ToolName != "" {
		calls = append(calls, ToolCall{Name: env.ToolName, Arguments: env.ToolInput})
	}
	report := env.FinalReport
	if len(report) == 0 {
		report = env.Final
	}

	action := strings.ToLower(strings.TrimSpace(env.Action))
	if action == "" {
		switch {
		case len(calls) > 0:
			action = "tool_calls"
		case len(report) > 0:
			action = "final"
		case looksLikeReport(body):
			action = "final"
			report = json.RawMessage(body)
		}
	}

	switch action {
	case "tool_calls", "tool", "tools":
		valid := make([]ToolCall, 0, len(calls))
		for _, c := range calls {
			c.Name = strings.TrimSpace(c.Name)
			if c.Name == "" {
				continue
			}
			if len(c.Arguments) == 0 || bytes.Equal(bytes.TrimSpace(c.Arguments), []byte("null")) {
				c.Arguments = json.RawMessage(`{}`)
			}
			valid = append(valid, c)
		}
		if len(valid) == 0 {
			return Malformed{Raw: raw, Reason: "tool_calls action without any named call"}
		}
		return ToolCalls{Thought: thought, Calls: valid, Unknowns: env.Unknowns}
	case "final", "final_report", "report":
		if len(bytes.TrimSpace(report)) == 0 || bytes.Equal(bytes.TrimSpace(report), []byte("null")) {
			return Malformed{Raw: raw, Reason: "final action without final_report"}
		}
		return FinalReport{Thought: thought, Report: report}
	case "":
		return Malformed{Raw: raw, Reason: "missing action"}
	default:
		return Malformed{Raw: raw, Reason: fmt.Sprintf("unknown action %q", env.Action)}
	}
}

func looksLikeReport(body string) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return false
	}
	for _, k := range reportKeys {
		if _, ok := probe[k]; ok {
			return true
		}
	}
	return false
}

// extractJSON returns the first fenced block if present, otherwise the span
// from the first '{' to the last '}'.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			if inner := strings.TrimSpace(rest[:j]); strings.HasPrefix(inner, "{") {
				return inner
			}
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
