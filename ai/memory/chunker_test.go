package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "single sentence",
			text: "Hello world.",
			want: []string{"Hello world."},
		},
		{
			name: "mixed terminators",
			text: "First one. Second one? Third one!",
			want: []string{"First one.", "Second one?", "Third one!"},
		},
		{
			name: "no trailing terminator",
			text: "Done here. And a trailing fragment",
			want: []string{"Done here.", "And a trailing fragment"},
		},
		{
			name: "dot inside a token is not a boundary",
			text: "Version 1.2 shipped. It works.",
			want: []string{"Version 1.2 shipped.", "It works."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestChunkTextAccumulatesSentences(t *testing.T) {
	text := "one two three. four five. six seven eight nine."
	chunks := ChunkText(text, 5)

	require.Equal(t, []string{
		"one two three. four five.",
		"six seven eight nine.",
	}, chunks)
}

func TestChunkTextOversizedSentence(t *testing.T) {
	// A single sentence above the target becomes its own chunk.
	long := strings.Repeat("word ", 20) + "end."
	chunks := ChunkText("Short one. "+long, 5)

	require.Len(t, chunks, 2)
	require.Equal(t, "Short one.", chunks[0])
	require.Equal(t, strings.TrimSpace(long), chunks[1])
}

func TestChunkTextNoSentenceLost(t *testing.T) {
	text := "Alpha beta. Gamma delta? Epsilon zeta! Eta theta."
	chunks := ChunkText(text, 3)

	joined := strings.Join(chunks, " ")
	require.Equal(t, strings.Fields(text), strings.Fields(joined))

	for _, c := range chunks {
		require.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestChunkTextFingerprintRoundtrip(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	for _, c := range ChunkText(text, 30) {
		fp := ComputeFingerprint(c)
		parsed, err := ParseFingerprint(fp.Hex())
		require.NoError(t, err)
		require.Equal(t, fp, parsed)
	}
}
