package ollama

import "google.golang.org/genai"

// translateResponse converts one wire chat response into one provider
// response with a single candidate. Part order is fixed: the text part, when
// content is non-empty, precedes the tool-call parts in their wire order.
// FinishReason is set to STOP exactly when the server reports done; usage is
// attached only when the server sent at least one counter.
func translateResponse(resp chatResponse) *genai.GenerateContentResponse {
	var parts []*genai.Part
	if resp.Message.Content != "" {
		parts = append(parts, &genai.Part{Text: resp.Message.Content})
	}
	for _, tc := range resp.Message.ToolCalls {
		parts = append(parts, functionCallPart(tc))
	}

	candidate := &genai.Candidate{
		Content: &genai.Content{Role: genai.RoleModel, Parts: parts},
	}
	if resp.Done {
		candidate.FinishReason = genai.FinishReasonStop
	}

	out := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{candidate}}
	if resp.PromptEvalCount != nil || resp.EvalCount != nil {
		var prompt, eval int
		if resp.PromptEvalCount != nil {
			prompt = *resp.PromptEvalCount
		}
		if resp.EvalCount != nil {
			eval = *resp.EvalCount
		}
		out.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(prompt),
			CandidatesTokenCount: int32(eval),
			TotalTokenCount:      int32(prompt + eval),
		}
	}
	return out
}
