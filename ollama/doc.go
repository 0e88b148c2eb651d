// Package ollama implements the ollabridge.Generator contract against a local
// Ollama server. It translates genai contents to the /api/chat wire format,
// decodes newline-delimited streamed responses, and recovers structured JSON
// output via the structured package.
package ollama
