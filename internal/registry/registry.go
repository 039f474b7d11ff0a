// Package registry holds the per-tenant set of enabled handlers and
// capabilities. It is read-only from the engine's perspective: mutation
// happens through administrative tooling that reloads the seed file.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/converge-ai/support-platform/internal/model"
)

// ErrHandlerUnavailable is returned when a handler is not enabled for the
// tenant. It is surfaced to the caller as an explicit rejection.
var ErrHandlerUnavailable = errors.New("handler not enabled for tenant")

// Registry is a tenant-keyed capability registry. Reads return copies so a
// request operates on a snapshot that cannot change underneath it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]model.HandlerDefinition // keyed by tenant ID
	keywords map[string][]string                  // per-tenant escalation keywords
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		handlers: make(map[string][]model.HandlerDefinition),
		keywords: make(map[string][]string),
	}
}

// seedFile is the on-disk registry format.
type seedFile struct {
	Tenants map[string]struct {
		Handlers           []model.HandlerDefinition `json:"handlers"`
		EscalationKeywords []string                  `json:"escalation_keywords"`
	} `json:"tenants"`
}

// LoadFile replaces the registry contents from a JSON seed file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read registry seed: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse registry seed: %w", err)
	}

	loaded := make(map[string][]model.HandlerDefinition, len(seed.Tenants))
	keywords := make(map[string][]string, len(seed.Tenants))
	for tenantID, t := range seed.Tenants {
		for i := range t.Handlers {
			sortCapabilities(&t.Handlers[i])
		}
		loaded[tenantID] = t.Handlers
		if len(t.EscalationKeywords) > 0 {
			keywords[tenantID] = t.EscalationKeywords
		}
	}

	r.mu.Lock()
	r.handlers = loaded
	r.keywords = keywords
	r.mu.Unlock()

	return nil
}

// EscalationKeywords returns each tenant's seeded escalation keywords.
func (r *Registry) EscalationKeywords() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.keywords))
	for tenantID, kws := range r.keywords {
		cp := make([]string, len(kws))
		copy(cp, kws)
		out[tenantID] = cp
	}
	return out
}

// Register enables a handler for a tenant. An existing definition with the
// same name is replaced.
func (r *Registry) Register(tenantID string, def model.HandlerDefinition) {
	sortCapabilities(&def)

	r.mu.Lock()
	defer r.mu.Unlock()

	defs := r.handlers[tenantID]
	for i, existing := range defs {
		if existing.Name == def.Name {
			defs[i] = def
			return
		}
	}
	r.handlers[tenantID] = append(defs, def)
}

// ListEnabledHandlers returns the handlers enabled for a tenant.
func (r *Registry) ListEnabledHandlers(tenantID string) []model.HandlerDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := r.handlers[tenantID]
	out := make([]model.HandlerDefinition, len(defs))
	for i, def := range defs {
		out[i] = copyDefinition(def)
	}
	return out
}

// GetHandler returns a tenant's handler by name, or ErrHandlerUnavailable.
func (r *Registry) GetHandler(tenantID, name string) (*model.HandlerDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, def := range r.handlers[tenantID] {
		if def.Name == name {
			cp := copyDefinition(def)
			return &cp, nil
		}
	}
	return nil, ErrHandlerUnavailable
}

// ListCapabilities returns a handler's capabilities ordered by priority
// ascending, tenant-filtered.
func (r *Registry) ListCapabilities(tenantID, handlerName string) ([]model.CapabilityDefinition, error) {
	def, err := r.GetHandler(tenantID, handlerName)
	if err != nil {
		return nil, err
	}
	return def.Capabilities, nil
}

func copyDefinition(def model.HandlerDefinition) model.HandlerDefinition {
	caps := make([]model.CapabilityDefinition, len(def.Capabilities))
	copy(caps, def.Capabilities)
	def.Capabilities = caps
	return def
}

// sortCapabilities enforces the priority ordering with a stable tie-break by
// name, so selection is reproducible across processes.
func sortCapabilities(def *model.HandlerDefinition) {
	sort.SliceStable(def.Capabilities, func(i, j int) bool {
		a, b := def.Capabilities[i], def.Capabilities[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Name < b.Name
	})
}
