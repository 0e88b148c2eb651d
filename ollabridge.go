package ollabridge

import (
	"context"
	"iter"

	"google.golang.org/genai"
)

// Request carries one generation call: ordered conversation contents plus
// optional generation config (sampling, system instruction, tools).
type Request struct {
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// Generator is the provider-agnostic generation contract. Implementations
// translate to and from a concrete backend wire protocol.
type Generator interface {
	// Generate performs a unary generation call.
	Generate(ctx context.Context, req *Request) (*genai.GenerateContentResponse, error)
	// GenerateStream performs a streamed call. The returned sequence is lazy
	// and pull-based: the backend is read only as the consumer advances.
	// It is valid for a single range loop.
	GenerateStream(ctx context.Context, req *Request) iter.Seq2[*genai.GenerateContentResponse, error]
	// Embed returns an embedding vector for the first text part of the first
	// content. Additional contents and parts are not supported.
	Embed(ctx context.Context, contents []*genai.Content) (*genai.EmbedContentResponse, error)
	// CountTokens returns a coarse token estimate for the given contents.
	CountTokens(ctx context.Context, contents []*genai.Content) (*genai.CountTokensResponse, error)
	// GenerateStructured asks the backend for a JSON object conforming to the
	// JSON-Schema-like map and recovers it best-effort from the response text.
	// It fails only on transport errors or an empty response body.
	GenerateStructured(ctx context.Context, contents []*genai.Content, schema map[string]any) (map[string]any, error)
}
