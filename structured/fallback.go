package structured

import "strings"

// Phrases that signal who takes the next turn when the model answered in
// prose instead of JSON.
var (
	modelTurnPhrases = []string{
		"model should speak",
		"model continues",
		"model will continue",
		"i should continue",
		"next speaker: model",
	}
	userTurnPhrases = []string{
		"user should speak",
		"user's turn",
		"waiting for the user",
		"waiting for user",
		"next speaker: user",
	}
)

const maxStringFallbackRunes = 100

// fallback synthesizes a value conforming to the schema's top-level
// properties when no strategy produced a parse.
func fallback(raw string, schema map[string]any) map[string]any {
	props := properties(schema)
	if len(props) == 0 {
		return map[string]any{"response": raw}
	}
	if _, hasSpeaker := props["next_speaker"]; hasSpeaker && len(props) == 2 {
		if _, hasReasoning := props["reasoning"]; hasReasoning {
			return inferNextSpeaker(raw)
		}
	}

	lower := strings.ToLower(raw)
	out := make(map[string]any, len(props))
	for name, prop := range props {
		spec, _ := prop.(map[string]any)
		switch typeName(spec) {
		case "string":
			if first, ok := firstEnumValue(spec); ok {
				out[name] = first
				continue
			}
			out[name] = firstRunes(raw, maxStringFallbackRunes)
		case "boolean":
			out[name] = strings.Contains(lower, "true") || strings.Contains(lower, "yes")
		default:
			out[name] = nil
		}
	}
	return out
}

// inferNextSpeaker decides the next speaker from prose by case-insensitive
// phrase matching, defaulting to the user.
func inferNextSpeaker(raw string) map[string]any {
	lower := strings.ToLower(raw)
	for _, phrase := range modelTurnPhrases {
		if strings.Contains(lower, phrase) {
			return map[string]any{
				"next_speaker": "model",
				"reasoning":    "Inferred from response indicating the model should continue",
			}
		}
	}
	for _, phrase := range userTurnPhrases {
		if strings.Contains(lower, phrase) {
			return map[string]any{
				"next_speaker": "user",
				"reasoning":    "Inferred from response indicating it is the user's turn",
			}
		}
	}
	return map[string]any{
		"next_speaker": "user",
		"reasoning":    "Unable to determine next speaker from the response",
	}
}

func properties(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	props, _ := schema["properties"].(map[string]any)
	return props
}

func typeName(spec map[string]any) string {
	if spec == nil {
		return ""
	}
	t, _ := spec["type"].(string)
	return t
}

// firstEnumValue returns the first enumerated value of a property. Schemas
// arrive both as decoded JSON ([]any) and as hand-built maps ([]string).
func firstEnumValue(spec map[string]any) (any, bool) {
	if spec == nil {
		return nil, false
	}
	switch enum := spec["enum"].(type) {
	case []any:
		if len(enum) > 0 {
			return enum[0], true
		}
	case []string:
		if len(enum) > 0 {
			return enum[0], true
		}
	}
	return nil, false
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
