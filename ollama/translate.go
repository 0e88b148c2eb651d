package ollama

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const emptyArgs = "{}"

// translateRole maps a genai role onto the wire protocol. The map is total:
// "model" becomes "assistant", every other role passes through unchanged.
func translateRole(role string) string {
	if role == genai.RoleModel {
		return "assistant"
	}
	return role
}

// translateContents converts genai contents into wire messages. Contents with
// no parts contribute no message. Within one content, text parts are
// concatenated in order, image blobs are collected into the images list, and
// function calls become tool calls. Function responses have no wire role of
// their own, so their payload is folded into the content text as a synthetic
// "Function <name> returned: <json>" line.
func translateContents(contents []*genai.Content) []chatMessage {
	msgs := make([]chatMessage, 0, len(contents))
	for _, content := range contents {
		if content == nil || len(content.Parts) == 0 {
			continue
		}
		var b strings.Builder
		var images []string
		var calls []toolCall
		for _, part := range content.Parts {
			if part == nil {
				continue
			}
			switch {
			case part.Text != "":
				b.WriteString(part.Text)
			case part.InlineData != nil:
				// Only image blobs survive; the protocol has no slot for
				// other binary types.
				if strings.HasPrefix(part.InlineData.MIMEType, "image/") {
					images = append(images, base64.StdEncoding.EncodeToString(part.InlineData.Data))
				}
			case part.FunctionCall != nil:
				calls = append(calls, toolCall{
					Type: "function",
					Function: toolCallFunction{
						Name:      part.FunctionCall.Name,
						Arguments: encodeArgs(part.FunctionCall.Args),
					},
				})
			case part.FunctionResponse != nil:
				name := part.FunctionResponse.Name
				if name == "" {
					name = "unknown"
				}
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				fmt.Fprintf(&b, "Function %s returned: %s", name, encodeArgs(part.FunctionResponse.Response))
			}
		}
		msgs = append(msgs, chatMessage{
			Role:      translateRole(content.Role),
			Content:   b.String(),
			Images:    images,
			ToolCalls: calls,
		})
	}
	return msgs
}

// encodeArgs renders an argument mapping as JSON text, defaulting to "{}"
// when the mapping is absent or cannot be encoded.
func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return emptyArgs
	}
	b, err := json.Marshal(args)
	if err != nil {
		return emptyArgs
	}
	return string(b)
}

// translateTools bridges genai tool declarations into wire tools. The wire
// shape holds a single function per tool entry, so only the first function
// declaration of each tool is carried; the rest are dropped.
func translateTools(tools []*genai.Tool) []wireTool {
	var out []wireTool
	for _, tool := range tools {
		if tool == nil || len(tool.FunctionDeclarations) == 0 {
			continue
		}
		decl := tool.FunctionDeclarations[0]
		if decl == nil {
			continue
		}
		out = append(out, wireTool{
			Type: "function",
			Function: toolFunction{
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  schemaToMap(decl.Parameters),
			},
		})
	}
	return out
}

// schemaToMap converts a genai.Schema into a plain JSON-schema map via a JSON
// round trip, which keeps only the fields the schema actually sets.
func schemaToMap(s *genai.Schema) map[string]any {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// functionCallPart converts a wire tool call back into a genai function-call
// part. A malformed arguments string degrades to an empty mapping instead of
// failing the whole response.
func functionCallPart(tc toolCall) *genai.Part {
	args := make(map[string]any)
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = make(map[string]any)
		}
	}
	return &genai.Part{FunctionCall: &genai.FunctionCall{
		Name: tc.Function.Name,
		Args: args,
	}}
}
