// Package ollabridge defines a provider-agnostic content-generation contract
// expressed in google.golang.org/genai types, plus token estimation helpers.
// The ollama subpackage implements the contract against a local Ollama server;
// the structured subpackage recovers JSON objects from free-form model output.
package ollabridge
