package report

import "strings"

// FilterEvidence drops every evidence citation whose path is not allowed and
// returns how many were removed. References are filtered the same way.
func FilterEvidence(c *Candidate, allow func(path string) bool) int {
	if c == nil || allow == nil {
		return 0
	}
	removed := 0
	keep := func(refs []string) []string {
		var out []string
		for _, r := range refs {
			p, _ := SplitRef(strings.TrimSpace(r))
			if p != "" && allow(strings.TrimPrefix(p, "./")) {
				out = append(out, r)
				continue
			}
			removed++
		}
		return out
	}
	for i := range c.ArchitectureFindings {
		c.ArchitectureFindings[i].Evidence = keep(c.ArchitectureFindings[i].Evidence)
	}
	for i := range c.CriticalFlows {
		c.CriticalFlows[i].Evidence = keep(c.CriticalFlows[i].Evidence)
	}
	for i := range c.Risks {
		c.Risks[i].Evidence = keep(c.Risks[i].Evidence)
	}
	c.References = keep(c.References)
	return removed
}

// CollectEvidence returns every evidence citation in c, in report order.
func CollectEvidence(c *Candidate) []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, f := range c.ArchitectureFindings {
		out = append(out, f.Evidence...)
	}
	for _, f := range c.CriticalFlows {
		out = append(out, f.Evidence...)
	}
	for _, r := range c.Risks {
		out = append(out, r.Evidence...)
	}
	return out
}
