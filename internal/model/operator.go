package model

import (
	"time"
)

// DefaultMaxLoad is the default concurrent escalation capacity per operator.
const DefaultMaxLoad = 5

// Operator is a human support agent with availability and load capacity.
// CurrentLoad is mutated only by the escalation dispatcher through the
// operator pool; the invariant 0 <= CurrentLoad <= MaxLoad holds at all times.
type Operator struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Online      bool      `json:"online"`
	CurrentLoad int       `json:"current_load"`
	MaxLoad     int       `json:"max_load"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasCapacity reports whether the operator can take one more assignment.
func (o *Operator) HasCapacity() bool {
	return o.Online && o.CurrentLoad < o.MaxLoad
}
