package llm

import (
	"context"
	"encoding/json"
)

// Provider is the generation boundary: one prompt in, one text blob out.
// Assessment generation treats every backend as "string in, string out";
// schema-constrained output is an optional capability layered on top.
type Provider interface {
	// Generate sends a single request to the backend. When req.Schema is
	// set the provider asks for schema-conforming JSON and validates it
	// before returning; otherwise Content is the raw generated text.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the backend.
type Request struct {
	// System is an optional system prompt.
	System string

	// Messages is the conversation. Assessment generation always sends a
	// single user message carrying the full prompt.
	Messages []Message

	// Schema, when set, switches the provider into structured-output mode.
	Schema *Schema

	// MaxTokens caps the length of the generated output.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	Temperature float64
}

// UserPrompt builds the common single-message request.
func UserPrompt(prompt string, maxTokens int, temperature float64) Request {
	return Request{
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the backend.
type Schema struct {
	// Name identifies this schema, kebab-case (e.g. "mcq-assessment").
	// It doubles as the compiled-schema cache key.
	Name string

	// Description is sent to backends that accept one.
	Description string

	// Definition is the JSON Schema document as a map.
	Definition map[string]any
}

// Response holds the backend's output.
type Response struct {
	// Content is the generated output: validated JSON in structured mode,
	// the raw text otherwise.
	Content json.RawMessage

	Usage Usage

	// Model is the model that actually served the request.
	Model string

	// StopReason is one of StopEnd, StopMaxTokens or StopRefused.
	StopReason string
}

// Normalized stop reasons.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"

	// StopRefused covers vendor refusals and safety or content filters.
	// Content may be empty or hold the refusal text.
	StopRefused = "refused"
)

// Text returns the generated output as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Content)
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
