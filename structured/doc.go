// Package structured recovers a JSON object from free-form model output.
// Local servers cannot enforce a response schema, so Extract applies an
// ordered chain of extraction strategies (reasoning-trace stripping, fence
// unwrapping, progressively looser object parses) and, when every strategy
// fails, synthesizes a value shaped by the caller's schema. It never fails.
package structured
