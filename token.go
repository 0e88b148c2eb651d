package ollabridge

import (
	"unicode/utf8"

	"google.golang.org/genai"
)

// TokenCounter estimates token count for a string.
// Callers can plug in an exact tokenizer; default is CharFallbackCounter,
// which is what backends without a tokenizer endpoint get.
type TokenCounter interface {
	Count(text string) (int, error)
}

// CharFallbackCounter estimates tokens as runes/CharsPerToken.
// Zero value uses 4 chars per token (English average).
type CharFallbackCounter struct {
	CharsPerToken int
}

// Count returns estimated token count: ceil(rune_count / CharsPerToken).
// If CharsPerToken <= 0, uses 4. Empty text counts as 0.
func (c *CharFallbackCounter) Count(text string) (int, error) {
	cpt := c.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}
	n := utf8.RuneCountInString(text)
	return (n + cpt - 1) / cpt, nil
}

// ContentsText concatenates the text of every text part across contents,
// in order. Non-text parts contribute nothing. Used for token estimation.
func ContentsText(contents []*genai.Content) string {
	var total []byte
	for _, c := range contents {
		if c == nil {
			continue
		}
		for _, p := range c.Parts {
			if p != nil && p.Text != "" {
				total = append(total, p.Text...)
			}
		}
	}
	return string(total)
}
