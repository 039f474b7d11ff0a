package model

import (
	"github.com/converge-ai/support-platform/internal/schema"
)

// HandlerDefinition is a named automated responder with an instruction
// template and a priority-ordered capability list. Definitions are read-only
// to the engine; they are mutated only by administrative collaborators.
type HandlerDefinition struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	InstructionTemplate string `json:"instruction_template"`

	// OutputTemplate formats a capability's raw result into the reply text.
	// The placeholder {{result}} is replaced with the capability output.
	OutputTemplate string `json:"output_template,omitempty"`

	// Capabilities are ordered by Priority ascending (tried first).
	Capabilities []CapabilityDefinition `json:"capabilities"`
}

// EndpointConfig describes how a capability's backing system is reached.
type EndpointConfig struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// CapabilityDefinition is an invocable action with a declared input schema.
// The definition is immutable during a conversation; reads are snapshot
// consistent within a request.
type CapabilityDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema schema.InputSchema `json:"input_schema"`
	Endpoint    EndpointConfig     `json:"endpoint"`
	Priority    int                `json:"priority"`

	// Idempotent marks the invocation safe to retry automatically.
	Idempotent bool `json:"idempotent"`
}
