package router

import (
	"regexp"
	"strings"
)

const (
	longTokenCount     = 1000
	veryLongTokenCount = 4000
	maxComplexity      = 10

	urgentComplexity = 8
	normalComplexity = 4
)

// multiStepPattern matches enumerated steps such as "1. do this" or
// "2) then that".
var multiStepPattern = regexp.MustCompile(`\b\d+\s*[.)]\s+\w+`)

var multiStepWords = []string{
	"then", "after", "next", "first", "second", "third", "finally", "step",
}

// Domain families add a single +2 no matter how many of them match.
var domainFamilies = map[string][]string{
	"code": {"code", "function", "debug", "compile", "program", "script", "algorithm"},
	"math": {"math", "calculate", "equation", "integral", "derivative", "theorem"},
	"law":  {"law", "legal", "contract", "statute", "regulation", "liability"},
}

var realtimeWords = []string{"now", "immediately", "quick", "fast", "urgent"}

var privacyWords = []string{"private", "confidential", "secret", "personal"}

// ApproxTokens approximates the token count as ceil(len(text)/4). It is
// deliberately not a real tokenizer; the scoring contract depends on
// this exact formula.
func ApproxTokens(text string) int {
	return (len(text) + 3) / 4
}

// Score computes the complexity of a message, an integer in [0, 10].
// Scoring is deterministic: case-folded substring matching over the
// original text.
func Score(message string) int {
	folded := strings.ToLower(message)
	score := 0

	tokens := ApproxTokens(message)
	if tokens >= longTokenCount {
		score += 2
	}
	if tokens >= veryLongTokenCount {
		score += 2
	}

	if containsAny(folded, multiStepWords) || multiStepPattern.MatchString(message) {
		score += 3
	}

	for _, words := range domainFamilies {
		if containsAny(folded, words) {
			score += 2
			break
		}
	}

	if score > maxComplexity {
		score = maxComplexity
	}
	return score
}

// scoreTask fills the derived task fields from the message and config.
func scoreTask(t *Task, cfg Config) {
	folded := strings.ToLower(t.Message)

	t.Complexity = Score(t.Message)
	t.Realtime = containsAny(folded, realtimeWords)
	t.Privacy = cfg.PrivacyMode || containsAny(folded, privacyWords)

	switch {
	case t.Complexity >= urgentComplexity || t.Realtime:
		t.Priority = PriorityUrgent
	case t.Complexity >= normalComplexity:
		t.Priority = PriorityNormal
	default:
		t.Priority = PriorityBackground
	}
}

func containsAny(folded string, words []string) bool {
	for _, w := range words {
		if strings.Contains(folded, w) {
			return true
		}
	}
	return false
}
