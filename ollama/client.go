package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/genai"

	"github.com/valmere/ollabridge"
	"github.com/valmere/ollabridge/mediafetch"
	"github.com/valmere/ollabridge/structured"
)

const (
	// DefaultEmbedModel is used when no embedding model is configured.
	DefaultEmbedModel = "nomic-embed-text"

	defaultTimeout      = 120 * time.Second
	startupCheckTimeout = 10 * time.Second

	// maxErrBodySize limits how much of an error response body is read into
	// the returned error text.
	maxErrBodySize = 8 << 10
)

// Reasoning-trace delimiters some models leak into output. Structured calls
// forbid them in the prompt and list them as stop sequences; the structured
// package strips any that get through.
const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// Client talks to one Ollama server. It holds only static configuration and
// a guarded model-name cache, so concurrent calls need no external locking.
// Implements ollabridge.Generator.
type Client struct {
	baseURL    string
	model      string
	embedModel string
	authToken  string
	httpClient *http.Client
	log        *slog.Logger
	counter    ollabridge.TokenCounter

	fetchMedia    bool
	maxMediaBytes int64

	sf         singleflight.Group
	mu         sync.RWMutex
	modelNames []string

	// checkDone closes when the one-shot startup check finishes. No call
	// path waits on it; tests do.
	checkDone chan struct{}
}

var _ ollabridge.Generator = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithEmbedModel sets the embedding model. Default is DefaultEmbedModel.
func WithEmbedModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.embedModel = model
		}
	}
}

// WithAuthToken sets a Bearer token attached as an Authorization header on
// every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithHTTPClient sets the HTTP client. Default has a 120s timeout. If hc is
// nil, the default client is left unchanged.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger for connectivity and decode warnings.
// Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMediaFetch enables resolving https file-data parts into inline image
// blobs before translation; the wire protocol carries only inline images, so
// without this URL-based parts are dropped. maxBytes <= 0 uses
// mediafetch.DefaultMaxBodySize.
func WithMediaFetch(maxBytes int64) Option {
	return func(c *Client) {
		c.fetchMedia = true
		c.maxMediaBytes = maxBytes
	}
}

// WithTokenCounter sets the token estimator used by CountTokens.
func WithTokenCounter(tc ollabridge.TokenCounter) Option {
	return func(c *Client) {
		if tc != nil {
			c.counter = tc
		}
	}
}

// New creates a Client for the server at host (e.g. http://localhost:11434;
// trailing slash stripped) generating with the given model. It launches a
// one-shot detached connectivity check that reports problems as warnings and
// never blocks construction or any later call.
func New(host, model string, opts ...Option) (*Client, error) {
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return nil, fmt.Errorf("ollama: host must not be empty")
	}
	parsed, err := url.Parse(host)
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("ollama: invalid host %q", host)
	}
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	c := &Client{
		baseURL:    host,
		model:      model,
		embedModel: DefaultEmbedModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        slog.Default(),
		counter:    &ollabridge.CharFallbackCounter{},
		checkDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.startupCheck()
	return c, nil
}

// startupCheck verifies the server is reachable and the generation model is
// present. Best effort: failures are warnings only.
func (c *Client) startupCheck() {
	defer close(c.checkDone)
	ctx, cancel := context.WithTimeout(context.Background(), startupCheckTimeout)
	defer cancel()
	names, err := c.Models(ctx)
	if err != nil {
		c.log.Warn("ollama: server unreachable", "host", c.baseURL, "err", err)
		return
	}
	if !hasModel(names, c.model) {
		c.log.Warn("ollama: model not found on server", "model", c.model, "host", c.baseURL)
	}
}

// hasModel reports whether name matches a tag exactly or by base name
// (tags carry a ":latest"-style suffix).
func hasModel(names []string, name string) bool {
	for _, n := range names {
		if n == name || strings.SplitN(n, ":", 2)[0] == name {
			return true
		}
	}
	return false
}

// Models returns the names of models available on the server. The list is
// fetched once and cached; concurrent first calls share a single fetch.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	names := c.modelNames
	c.mu.RUnlock()
	if names != nil {
		return names, nil
	}
	v, err, _ := c.sf.Do("tags", func() (any, error) {
		resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()
		if err := checkStatus(resp); err != nil {
			return nil, err
		}
		var tags tagsResponse
		if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
			return nil, fmt.Errorf("ollama: decode tags: %w", err)
		}
		fetched := make([]string, 0, len(tags.Models))
		for _, m := range tags.Models {
			fetched = append(fetched, m.Name)
		}
		c.mu.Lock()
		c.modelNames = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// resolveMedia downloads URL-based image parts into inline blobs when media
// fetching is enabled; otherwise contents pass through untouched.
func (c *Client) resolveMedia(ctx context.Context, contents []*genai.Content) ([]*genai.Content, error) {
	if !c.fetchMedia {
		return contents, nil
	}
	resolved, err := mediafetch.ResolveImages(ctx, contents, c.maxMediaBytes)
	if err != nil {
		return nil, fmt.Errorf("ollama: resolve media: %w", err)
	}
	return resolved, nil
}

// Generate performs a unary chat call. A non-2xx status is fatal for the
// call; there is no retry.
func (c *Client) Generate(ctx context.Context, req *ollabridge.Request) (*genai.GenerateContentResponse, error) {
	contents, err := c.resolveMedia(ctx, req.Contents)
	if err != nil {
		return nil, err
	}
	wire, err := c.chatCall(ctx, c.buildChatRequest(&ollabridge.Request{Contents: contents, Config: req.Config}, false))
	if err != nil {
		return nil, err
	}
	return translateResponse(*wire), nil
}

// GenerateStream performs a streamed chat call. Each decoded wire record is
// translated independently; the sequence is valid for a single range loop.
// Cancelling ctx aborts the underlying request, which surfaces as a terminal
// error from the sequence.
func (c *Client) GenerateStream(ctx context.Context, req *ollabridge.Request) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		contents, err := c.resolveMedia(ctx, req.Contents)
		if err != nil {
			yield(nil, err)
			return
		}
		resp, err := c.do(ctx, http.MethodPost, "/api/chat", c.buildChatRequest(&ollabridge.Request{Contents: contents, Config: req.Config}, true))
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = resp.Body.Close() }()
		if err := checkStatus(resp); err != nil {
			yield(nil, err)
			return
		}
		if resp.Body == http.NoBody {
			yield(nil, ErrMissingBody)
			return
		}
		for wire, err := range decodeStream(resp.Body, c.log) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(translateResponse(wire), nil) {
				return
			}
		}
	}
}

// Embed returns the embedding of the first text part of the first content.
// Multi-part and multi-content embed inputs are not supported; only the
// first is used.
func (c *Client) Embed(ctx context.Context, contents []*genai.Content) (*genai.EmbedContentResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/embed", embedRequest{
		Model: c.embedModel,
		Input: firstText(contents),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("ollama: decode embed response: %w", err)
	}
	out := &genai.EmbedContentResponse{}
	if len(er.Embeddings) > 0 {
		out.Embeddings = []*genai.ContentEmbedding{{Values: er.Embeddings[0]}}
	}
	return out, nil
}

// CountTokens estimates tokens for the given contents. This is the
// configured TokenCounter's estimate (ceil(runes/4) by default), not a true
// tokenizer.
func (c *Client) CountTokens(_ context.Context, contents []*genai.Content) (*genai.CountTokensResponse, error) {
	n, err := c.counter.Count(ollabridge.ContentsText(contents))
	if err != nil {
		return nil, fmt.Errorf("ollama: count tokens: %w", err)
	}
	return &genai.CountTokensResponse{TotalTokens: int32(n)}, nil
}

const structuredSystemPrompt = "You are a helpful assistant that responds only with valid JSON objects. " +
	"Never include explanations, markdown fences, or any text outside the JSON object."

// GenerateStructured asks for a JSON object conforming to schema. The server
// cannot enforce a schema, so a JSON-only system instruction and a user turn
// repeating the schema are prepended before the conversation, the request
// uses format "json" with the reasoning-trace tags as stop sequences, and the
// response text goes through the structured extraction chain. An empty
// response text is fatal; extraction itself never fails.
func (c *Client) GenerateStructured(ctx context.Context, contents []*genai.Content, schema map[string]any) (map[string]any, error) {
	contents, err := c.resolveMedia(ctx, contents)
	if err != nil {
		return nil, err
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ollama: encode schema: %w", err)
	}
	instruction := fmt.Sprintf(
		"Respond with a single JSON object matching this schema:\n%s\n"+
			"Do not emit %s or %s tags or any reasoning text.",
		schemaJSON, thinkOpenTag, thinkCloseTag)

	wrapped := make([]*genai.Content, 0, len(contents)+2)
	wrapped = append(wrapped, &genai.Content{
		Role:  "system",
		Parts: []*genai.Part{{Text: structuredSystemPrompt}},
	})
	wrapped = append(wrapped, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: instruction}},
	})
	wrapped = append(wrapped, contents...)

	body := c.buildChatRequest(&ollabridge.Request{Contents: wrapped}, false)
	body.Format = "json"
	if body.Options == nil {
		body.Options = &chatOptions{}
	}
	body.Options.Stop = append(body.Options.Stop, thinkOpenTag, thinkCloseTag)

	wire, err := c.chatCall(ctx, body)
	if err != nil {
		return nil, err
	}
	text := wire.Message.Content
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	return structured.Extract(text, schema), nil
}

// buildChatRequest assembles the wire request from contents and config.
// A config system instruction is prepended as a system message; sampling
// options are attached only when the config sets at least one.
func (c *Client) buildChatRequest(req *ollabridge.Request, stream bool) chatRequest {
	contents := req.Contents
	if req.Config != nil && req.Config.SystemInstruction != nil {
		withSystem := make([]*genai.Content, 0, len(contents)+1)
		withSystem = append(withSystem, &genai.Content{
			Role:  "system",
			Parts: req.Config.SystemInstruction.Parts,
		})
		contents = append(withSystem, contents...)
	}
	out := chatRequest{
		Model:    c.model,
		Messages: translateContents(contents),
		Stream:   stream,
	}
	if req.Config != nil {
		cfg := req.Config
		var opts chatOptions
		var set bool
		if cfg.Temperature != nil {
			opts.Temperature = cfg.Temperature
			set = true
		}
		if cfg.TopP != nil {
			opts.TopP = cfg.TopP
			set = true
		}
		if cfg.MaxOutputTokens > 0 {
			n := cfg.MaxOutputTokens
			opts.NumPredict = &n
			set = true
		}
		if len(cfg.StopSequences) > 0 {
			opts.Stop = cfg.StopSequences
			set = true
		}
		if set {
			out.Options = &opts
		}
		out.Tools = translateTools(cfg.Tools)
	}
	return out
}

// chatCall runs one unary /api/chat request and decodes the single response
// object.
func (c *Client) chatCall(ctx context.Context, body chatRequest) (*chatResponse, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("ollama: decode chat response: %w", err)
	}
	return &wire, nil
}

// do issues one HTTP request against the server, attaching the Bearer token
// when configured.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ollama: encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("ollama: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// checkStatus returns ErrStatus with status and body text for non-2xx
// responses.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
	return fmt.Errorf("%w: %s: %s", ErrStatus, resp.Status, strings.TrimSpace(string(body)))
}

// firstText returns the first text part of the first content, or "".
func firstText(contents []*genai.Content) string {
	for _, content := range contents {
		if content == nil {
			continue
		}
		for _, part := range content.Parts {
			if part != nil && part.Text != "" {
				return part.Text
			}
		}
		return ""
	}
	return ""
}
