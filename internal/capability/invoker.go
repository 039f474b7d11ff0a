// Package capability invokes external capabilities against their configured
// backing systems.
package capability

import (
	"context"

	"github.com/converge-ai/support-platform/internal/model"
)

// Result is the outcome of one capability invocation. CannotHelp is an
// explicit signal from the capability that it cannot serve the request, as
// opposed to a transport failure.
type Result struct {
	Output     string `json:"output"`
	CannotHelp bool   `json:"cannot_help,omitempty"`
}

// Invoker executes a capability with validated parameters. Implementations
// must honor the context deadline; retries are the caller's concern.
type Invoker interface {
	Invoke(ctx context.Context, def *model.CapabilityDefinition, params map[string]any) (*Result, error)
}
