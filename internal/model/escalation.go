package model

import (
	"time"
)

// EscalationStatus is the lifecycle status of an escalation.
type EscalationStatus string

const (
	EscalationPending    EscalationStatus = "pending"
	EscalationAssigned   EscalationStatus = "assigned"
	EscalationInProgress EscalationStatus = "in_progress"
	EscalationOnHold     EscalationStatus = "on_hold"
	EscalationResolved   EscalationStatus = "resolved"
	EscalationClosed     EscalationStatus = "closed"
)

// EscalationPriority orders the pending queue.
type EscalationPriority string

const (
	PriorityNormal   EscalationPriority = "normal"
	PriorityHigh     EscalationPriority = "high"
	PriorityCritical EscalationPriority = "critical"
)

// ValidPriority reports whether p is a known priority value.
func ValidPriority(p EscalationPriority) bool {
	switch p {
	case PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Escalation is the record and lifecycle of handing a conversation to an
// operator. At most one active escalation exists per conversation; a resolved
// or closed escalation does not block a later re-escalation.
type Escalation struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`

	Reason   string             `json:"reason"`
	Priority EscalationPriority `json:"priority"`
	Status   EscalationStatus   `json:"status"`

	AssignedOperatorID *string `json:"assigned_operator_id,omitempty"`
	ResolutionNotes    *string `json:"resolution_notes,omitempty"`

	// Auto-detection metadata (set when a keyword detector triggered this).
	AutoDetected     bool     `json:"auto_detected,omitempty"`
	DetectedKeywords []string `json:"detected_keywords,omitempty"`

	// Transition timestamps.
	RequestedAt time.Time  `json:"requested_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	HeldAt      *time.Time `json:"held_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// Active reports whether the escalation occupies its conversation: a new
// request while active returns the existing record instead of erroring.
func (s EscalationStatus) Active() bool {
	switch s {
	case EscalationPending, EscalationAssigned, EscalationInProgress, EscalationOnHold:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s EscalationStatus) Terminal() bool {
	return s == EscalationResolved || s == EscalationClosed
}

// transitions is the allowed edge set of the escalation state machine.
var transitions = map[EscalationStatus][]EscalationStatus{
	EscalationPending:    {EscalationAssigned},
	EscalationAssigned:   {EscalationInProgress},
	EscalationInProgress: {EscalationResolved, EscalationOnHold, EscalationClosed},
	EscalationOnHold:     {EscalationInProgress, EscalationResolved, EscalationClosed},
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to EscalationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EscalationRequest is the request to escalate a conversation.
type EscalationRequest struct {
	ConversationID string             `json:"conversation_id"`
	Reason         string             `json:"reason"`
	Priority       EscalationPriority `json:"priority"`
}

// EscalationQueue is a tenant's escalation backlog with per-status counts.
type EscalationQueue struct {
	Escalations []Escalation `json:"escalations"`
	Pending     int          `json:"pending_count"`
	Assigned    int          `json:"assigned_count"`
	InProgress  int          `json:"in_progress_count"`
	OnHold      int          `json:"on_hold_count"`
	Resolved    int          `json:"resolved_count"`
	Closed      int          `json:"closed_count"`
}
