// Package generation provides interfaces and errors for interacting with
// external generative model endpoints. It abstracts the details of the
// model API (Ollama, Gemini), allowing the task pipeline to request text
// generation without coupling to a specific provider.
package generation
