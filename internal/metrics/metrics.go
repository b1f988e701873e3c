// Package metrics holds small, dependency-free counters for a single turn.
package metrics

import (
	"strings"
	"unicode/utf8"
)

// Features holds basic local text features derived from an input string.
type Features struct {
	Bytes int
	Runes int
	Words int
	Lines int
}

// CountFeatures computes byte, rune, word, and line counts for s.
func CountFeatures(s string) Features {
	return Features{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Words: len(strings.Fields(s)),
		Lines: countLines(s),
	}
}

// countLines returns 0 for empty strings; otherwise 1 plus the number of '\n' runes.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return 1 + strings.Count(s, "\n")
}

// TurnCounters tallies what happened during one user turn.
// A TurnCounters is owned by the goroutine running the turn.
type TurnCounters struct {
	Iterations       int
	Deltas           int
	ToolCalls        int
	ToolFailures     int
	DroppedToolCalls int
}

// ObserveToolResult counts one executed call and whether it failed.
func (c *TurnCounters) ObserveToolResult(success bool) {
	c.ToolCalls++
	if !success {
		c.ToolFailures++
	}
}
