// Package report holds the candidate final report proposed by the model,
// the quality gate that accepts or rejects it, and the normalizers applied
// before the gate runs.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StatusNeedMoreEvidence is the status a model returns when it cannot
// support confident findings.
const StatusNeedMoreEvidence = "need_more_evidence"

type Finding struct {
	Title     string   `json:"title"`
	Judgement string   `json:"judgement"`
	Evidence  []string `json:"evidence"`
}

type Flow struct {
	Name     string   `json:"name"`
	Steps    []string `json:"steps"`
	Evidence []string `json:"evidence"`
}

type Risk struct {
	Risk     string   `json:"risk"`
	Impact   string   `json:"impact"`
	Evidence []string `json:"evidence"`
}

type ModuleSummary struct {
	Module  string `json:"module"`
	Summary string `json:"summary"`
}

// Candidate is a proposed final report.
type Candidate struct {
	ArchitectureFindings []Finding       `json:"architectureFindings"`
	CriticalFlows        []Flow          `json:"criticalFlows"`
	References           []string        `json:"references"`
	Diagrams             []string        `json:"diagrams"`
	Risks                []Risk          `json:"risks"`
	Unknowns             []string        `json:"unknowns"`
	ModuleSummaries      []ModuleSummary `json:"moduleSummaries"`
	Status               string          `json:"status,omitempty"`
}

// NeedsMoreEvidence reports whether the model flagged its own report as thin.
func (c *Candidate) NeedsMoreEvidence() bool {
	return c != nil && strings.EqualFold(strings.TrimSpace(c.Status), StatusNeedMoreEvidence)
}

// Parse decodes a candidate report from raw model JSON.
func Parse(raw json.RawMessage) (*Candidate, error) {
	var c Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("report: decode candidate: %w", err)
	}
	return &c, nil
}

// Models alternate between strings and objects for a few fields; accept both.

func (f *Finding) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*f = Finding{Title: s, Judgement: s}
		return nil
	}
	var raw struct {
		Title     string   `json:"title"`
		Judgement string   `json:"judgement"`
		Judgment  string   `json:"judgment"`
		Evidence  []string `json:"evidence"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*f = Finding{Title: raw.Title, Judgement: firstNonEmpty(raw.Judgement, raw.Judgment), Evidence: raw.Evidence}
	return nil
}

func (r *Risk) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*r = Risk{Risk: s}
		return nil
	}
	type plain Risk
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Risk(p)
	return nil
}

func (m *ModuleSummary) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*m = ModuleSummary{Summary: s}
		return nil
	}
	var raw struct {
		Module  string `json:"module"`
		Name    string `json:"name"`
		Path    string `json:"path"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = ModuleSummary{Module: firstNonEmpty(raw.Module, raw.Name, raw.Path), Summary: raw.Summary}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
