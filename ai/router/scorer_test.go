package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApproxTokens(t *testing.T) {
	require.Equal(t, 0, ApproxTokens(""))
	require.Equal(t, 1, ApproxTokens("a"))
	require.Equal(t, 1, ApproxTokens("abcd"))
	require.Equal(t, 2, ApproxTokens("abcde"))
	require.Equal(t, 1000, ApproxTokens(strings.Repeat("x", 4000)))
}

func TestScore(t *testing.T) {
	longText := strings.Repeat("blah ", 800)      // ~1000 tokens
	veryLongText := strings.Repeat("blah ", 3280) // ~4100 tokens

	tests := []struct {
		name    string
		message string
		want    int
	}{
		{"trivial", "Hi", 0},
		{"long", longText, 2},
		{"very long", veryLongText, 4},
		{"multi-step word", "do this, then do that", 3},
		{"enumerated steps", "1. gather inputs 2) run it", 3},
		{"domain keyword", "please debug my program", 2},
		{"domain families do not stack", "calculate this equation in my code", 2},
		{"multi-step plus domain", "first compile it, finally run the script", 5},
		{"very long multi-step", veryLongText + " first do it, then verify, finally report", 7},
		{"all signals stack", veryLongText + " first calculate the integral, then 1. prove it", 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.message)
			require.Equal(t, tt.want, got)
			// Deterministic and in range.
			require.Equal(t, got, Score(tt.message))
			require.GreaterOrEqual(t, got, 0)
			require.LessOrEqual(t, got, 10)
		})
	}
}

func TestScoreTaskFlags(t *testing.T) {
	tests := []struct {
		name         string
		message      string
		cfg          Config
		wantRealtime bool
		wantPrivacy  bool
		wantPriority Priority
	}{
		{
			name:         "plain",
			message:      "hello there",
			wantPriority: PriorityBackground,
		},
		{
			name:         "realtime keyword is urgent",
			message:      "reply immediately please",
			wantRealtime: true,
			wantPriority: PriorityUrgent,
		},
		{
			name:        "privacy keyword",
			message:     "this is confidential material",
			wantPrivacy: true,
			// "confidential" carries no complexity on its own
			wantPriority: PriorityBackground,
		},
		{
			name:         "privacy via config",
			message:      "summarise this document",
			cfg:          Config{PrivacyMode: true},
			wantPrivacy:  true,
			wantPriority: PriorityBackground,
		},
		{
			name:         "mid complexity is normal",
			message:      "first review the contract, then sign it",
			wantPriority: PriorityNormal,
		},
		{
			name:         "high complexity is urgent",
			message:      strings.Repeat("blah ", 3280) + " first calculate, then prove the theorem",
			wantPriority: PriorityUrgent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewTask("chan", "user", tt.message, nil)
			scoreTask(task, tt.cfg)
			require.Equal(t, tt.wantRealtime, task.Realtime)
			require.Equal(t, tt.wantPrivacy, task.Privacy)
			require.Equal(t, tt.wantPriority, task.Priority)
		})
	}
}
