// Package mediafetch resolves URL-based image parts into inline blobs for
// backends whose wire protocol accepts only inline media. Only https URLs
// are fetched, with a size cap and an image/* content-type check.
package mediafetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

// DefaultMaxBodySize is the default limit for one media download (10 MiB).
const DefaultMaxBodySize = 10 << 20

var (
	// ErrUnsafeScheme is returned when the URL scheme is not https.
	ErrUnsafeScheme = errors.New("mediafetch: only https scheme is allowed")
	// ErrBodyTooLarge is returned when the response exceeds the size limit.
	ErrBodyTooLarge = errors.New("mediafetch: response body exceeds size limit")
	// ErrUnsupportedType is returned when Content-Type is not image/*.
	ErrUnsupportedType = errors.New("mediafetch: unsupported content type")
)

// DefaultClient is the HTTP client used for fetching. Override in tests to
// use a custom client (e.g. TLS with a test certificate pool).
var DefaultClient = http.DefaultClient

// ResolveImages returns a copy of contents in which every file-data part
// carrying an https URI is replaced by an inline image blob. Contents without
// file-data parts are shared, not copied. The input is never mutated.
func ResolveImages(ctx context.Context, contents []*genai.Content, maxBytes int64) ([]*genai.Content, error) {
	out := make([]*genai.Content, len(contents))
	for i, content := range contents {
		if content == nil || !hasFileData(content) {
			out[i] = content
			continue
		}
		resolved := &genai.Content{Role: content.Role, Parts: make([]*genai.Part, len(content.Parts))}
		for j, part := range content.Parts {
			if part == nil || part.FileData == nil || part.FileData.FileURI == "" {
				resolved.Parts[j] = part
				continue
			}
			data, contentType, err := FetchImage(ctx, part.FileData.FileURI, maxBytes)
			if err != nil {
				return nil, fmt.Errorf("resolve %q: %w", part.FileData.FileURI, err)
			}
			if contentType == "" {
				contentType = part.FileData.MIMEType
			}
			resolved.Parts[j] = &genai.Part{InlineData: &genai.Blob{MIMEType: contentType, Data: data}}
		}
		out[i] = resolved
	}
	return out, nil
}

func hasFileData(content *genai.Content) bool {
	for _, part := range content.Parts {
		if part != nil && part.FileData != nil && part.FileData.FileURI != "" {
			return true
		}
	}
	return false
}

// FetchImage downloads one https URL with ctx, a size limit, and an image/*
// content-type check. maxBytes <= 0 uses DefaultMaxBodySize.
func FetchImage(ctx context.Context, rawURL string, maxBytes int64) (data []byte, contentType string, err error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("mediafetch: parse URL: %w", err)
	}
	if u.Scheme != "https" {
		return nil, "", ErrUnsafeScheme
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("mediafetch: new request: %w", err)
	}
	resp, err := DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("mediafetch: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("mediafetch: status %s", resp.Status)
	}
	contentType = resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	data, err = io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("mediafetch: read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", ErrBodyTooLarge
	}
	return data, contentType, nil
}
