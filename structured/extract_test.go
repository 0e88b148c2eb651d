package structured

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var numberSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"x": map[string]any{"type": "number"},
	},
}

func TestExtract_DirectObject(t *testing.T) {
	t.Parallel()
	got := Extract(`{"x": 1}`, numberSchema)
	assert.Equal(t, map[string]any{"x": float64(1)}, got)
}

func TestExtract_ThinkBlockStripped(t *testing.T) {
	t.Parallel()
	got := Extract("<think>reasoning</think>{\"x\":1}", numberSchema)
	assert.Equal(t, map[string]any{"x": float64(1)}, got)
}

func TestExtract_MultipleThinkBlocks(t *testing.T) {
	t.Parallel()
	got := Extract("<think>a</think>middle<THINK>b</THINK>{\"x\":2}", numberSchema)
	assert.Equal(t, map[string]any{"x": float64(2)}, got)
}

func TestExtract_MissingOpenTag(t *testing.T) {
	t.Parallel()
	// Opening tag lost, closing tag present: text after the last close wins.
	got := Extract("some leaked reasoning {\"x\":9} more</think>\n{\"x\":3}", numberSchema)
	assert.Equal(t, map[string]any{"x": float64(3)}, got)
}

func TestExtract_MissingOpenTagNonASCII(t *testing.T) {
	t.Parallel()
	// Characters whose lowercase form has a different UTF-8 byte length
	// (U+023A lowers to the 3-byte U+2C65) must not shift the tag position.
	raw := strings.Repeat("Ⱥ", 8) + "</THINK>{\"x\":1}"
	got := Extract(raw, numberSchema)
	assert.Equal(t, map[string]any{"x": float64(1)}, got)
}

func TestExtract_FencedBlock(t *testing.T) {
	t.Parallel()
	got := Extract("```json\n{\"x\": 4}\n```", numberSchema)
	assert.Equal(t, map[string]any{"x": float64(4)}, got)
}

func TestExtract_UntaggedFence(t *testing.T) {
	t.Parallel()
	got := Extract("```\n{\"x\": 5}\n```", numberSchema)
	assert.Equal(t, map[string]any{"x": float64(5)}, got)
}

func TestExtract_FlatObjectInProse(t *testing.T) {
	t.Parallel()
	got := Extract(`Here is the result you asked for: {"x": 6} hope it helps`, numberSchema)
	assert.Equal(t, map[string]any{"x": float64(6)}, got)
}

func TestExtract_FlatObjectPrefersInnermost(t *testing.T) {
	t.Parallel()
	// A nested flat object is what the narrow regex can see; it wins over
	// the wider brace span.
	got := Extract(`Result: {"x": {"y": 7}} done`, numberSchema)
	assert.Equal(t, map[string]any{"y": float64(7)}, got)
}

func TestExtract_BraceSpan(t *testing.T) {
	t.Parallel()
	// No flat object anywhere (array and empty-object values), so the
	// first-{ to last-} span is parsed.
	got := Extract(`Result: {"a": [1, 2], "b": {}} done`, numberSchema)
	require.Contains(t, got, "a")
	assert.Equal(t, []any{float64(1), float64(2)}, got["a"])
	assert.Equal(t, map[string]any{}, got["b"])
}

func TestExtract_NextSpeakerInStrippedText(t *testing.T) {
	t.Parallel()
	// The object lives inside the reasoning trace, so the cleaned text has
	// no JSON; the next_speaker search runs on the original input.
	raw := "<think>{\"next_speaker\": \"model\", \"reasoning\": \"more to do\"}</think>all done"
	got := Extract(raw, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"next_speaker": map[string]any{"type": "string"},
			"reasoning":    map[string]any{"type": "string"},
		},
	})
	assert.Equal(t, "model", got["next_speaker"])
}

func TestExtract_NextSpeakerBracesInReasoning(t *testing.T) {
	t.Parallel()
	// Braces inside the reasoning string must not defeat the object match.
	raw := "<think>{\"next_speaker\": \"model\", \"reasoning\": \"finish the {loop} first\"}</think>"
	got := Extract(raw, nextSpeakerSchema)
	assert.Equal(t, "model", got["next_speaker"])
	assert.Equal(t, "finish the {loop} first", got["reasoning"])
}

func TestExtract_NeverNil(t *testing.T) {
	t.Parallel()
	got := Extract("", nil)
	require.NotNil(t, got)
	assert.Equal(t, map[string]any{"response": ""}, got)
}

func TestCleanup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  hello  ", "hello"},
		{"one block", "<think>a</think>x", "x"},
		{"case insensitive", "<Think>a</Think>x", "x"},
		{"fence json", "```json\n{}\n```", "{}"},
		{"fence bare", "```\ntext\n```", "text"},
		{"close without open", "noise</think>answer", "answer"},
		{"no fence inside", "a ``` b", "a ``` b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanup(tt.in))
		})
	}
}
