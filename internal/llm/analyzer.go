// Package llm turns captured page content into a CRO analysis via a
// chat-completion backend.
package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Input is the captured content handed to the analyzer.
type Input struct {
	URL  string
	Text string
	HTML string
}

// Result carries the analysis text plus the accounting the analysis record
// stores as metadata.
type Result struct {
	Analysis   string
	WordCount  int
	TokenCount int
}

// Analyzer produces a CRO analysis for a captured page.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (*Result, error)
}

const promptTemplate = `You are a senior conversion-rate-optimization consultant.
Analyze the landing page below and produce a structured report with these sections:

1. First impression and value proposition clarity
2. Call-to-action placement, copy, and hierarchy
3. Trust signals and social proof
4. Friction points in the conversion path
5. Concrete, prioritized recommendations

URL: %s

VISIBLE TEXT:
%s

HTML SAMPLE:
%s`

// buildPrompt fills the fixed template with head+tail sampled content.
// textBudget and htmlBudget split the overall character budget so that
// prose dominates over markup.
func buildPrompt(in Input, maxChars int) string {
	textBudget := maxChars * 2 / 3
	htmlBudget := maxChars - textBudget
	return fmt.Sprintf(promptTemplate, in.URL,
		sampleText(in.Text, textBudget),
		sampleText(in.HTML, htmlBudget))
}

// sampleText keeps the head and tail of oversized content within the
// character budget, marking the elision in the middle. Cut points back
// off to rune boundaries so multibyte input is never split mid-rune.
func sampleText(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	const marker = "\n[... truncated ...]\n"
	if budget <= len(marker) {
		return s[:runeFloor(s, budget)]
	}
	keep := budget - len(marker)
	head := runeFloor(s, keep*2/3)
	tail := runeCeil(s, len(s)-(keep-head))
	return s[:head] + marker + s[tail:]
}

// runeFloor returns the largest offset <= i that starts a rune in s.
func runeFloor(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil returns the smallest offset >= i that starts a rune in s.
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// CountWords is the word count recorded in analysis metadata.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
