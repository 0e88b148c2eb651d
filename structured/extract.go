package structured

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// thinkBlockRe matches one complete reasoning-trace block, shortest
	// match, across newlines.
	thinkBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>`)
	// fenceRe matches a whole string wrapped in one fenced code block,
	// optionally tagged json.
	fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	// flatObjectRe matches a single flat JSON object with at least one
	// quoted key and no nesting.
	flatObjectRe = regexp.MustCompile(`\{[^{}]*"[^"]+"\s*:[^{}]*\}`)
	// thinkCloseRe matches a closing reasoning-trace tag on its own, for
	// traces whose opening tag was lost or malformed.
	thinkCloseRe = regexp.MustCompile(`(?i)</think>`)
)

// Extract recovers a JSON object from raw model output against a
// JSON-Schema-like map. Strategies run in order and short-circuit on the
// first successful parse; when none succeeds, the result is a synthesized
// value shaped by the schema. Extract never fails.
func Extract(raw string, schema map[string]any) map[string]any {
	working := cleanup(raw)

	strategies := []func(string) (map[string]any, bool){
		parseDirect,
		parseFlatObject,
		parseBraceSpan,
	}
	for _, strategy := range strategies {
		if v, ok := strategy(working); ok {
			return v
		}
	}
	// Some models surface the next_speaker object only in the text the
	// cleanup removed, so this last parse runs on the original input.
	if v, ok := parseNextSpeaker(raw); ok {
		return v
	}
	return fallback(raw, schema)
}

// cleanup strips reasoning traces and one fence wrapper from raw:
// every complete <think> block is removed; if a closing tag is present the
// text strictly after the last one wins (covers a reasoning block with a
// missing or malformed opening tag); finally one fenced code block wrapper
// is unwrapped.
func cleanup(raw string) string {
	working := thinkBlockRe.ReplaceAllString(raw, "")
	if locs := thinkCloseRe.FindAllStringIndex(raw, -1); len(locs) > 0 {
		working = raw[locs[len(locs)-1][1]:]
	}
	working = strings.TrimSpace(working)
	if m := fenceRe.FindStringSubmatch(working); m != nil {
		working = m[1]
	}
	return strings.TrimSpace(working)
}

// parseDirect parses text that already looks like one JSON object.
func parseDirect(text string) (map[string]any, bool) {
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return nil, false
	}
	return tryParse(text)
}

// parseFlatObject finds the first flat JSON object with a quoted key.
func parseFlatObject(text string) (map[string]any, bool) {
	m := flatObjectRe.FindString(text)
	if m == "" {
		return nil, false
	}
	return tryParse(m)
}

// parseBraceSpan parses the span between the first '{' and the last '}'.
func parseBraceSpan(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return tryParse(text[start : end+1])
}

// parseNextSpeaker finds an object carrying a next_speaker key in text. The
// object is located by balancing braces outward from the key, so string
// values containing braces do not break the match.
func parseNextSpeaker(text string) (map[string]any, bool) {
	keyIdx := strings.Index(text, `"next_speaker"`)
	if keyIdx < 0 {
		return nil, false
	}
	for start := strings.LastIndex(text[:keyIdx], "{"); start >= 0; start = strings.LastIndex(text[:start], "{") {
		end := matchBrace(text, start)
		if end < 0 {
			continue
		}
		if v, ok := tryParse(text[start : end+1]); ok {
			return v, true
		}
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON string literals are skipped.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func tryParse(text string) (map[string]any, bool) {
	var v map[string]any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	return v, true
}
