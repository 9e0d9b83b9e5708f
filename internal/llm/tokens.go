package llm

import "strings"

// CountTokens is a cheap provider-independent estimate: whitespace-separated
// words, or len/4 for unsegmented text such as CJK prose.
func CountTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	byLen := len(text) / 4
	if byLen > words {
		return byLen
	}
	if words > 0 {
		return words
	}
	return 1
}

// EstimateMessages sums CountTokens over message contents.
func EstimateMessages(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += CountTokens(m.Content)
	}
	return total
}
