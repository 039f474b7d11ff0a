package model

import (
	"time"
)

// EscalationEventType identifies an escalation lifecycle transition.
type EscalationEventType string

const (
	EventEscalationRequested EscalationEventType = "requested"
	EventEscalationAssigned  EscalationEventType = "assigned"
	EventEscalationStarted   EscalationEventType = "started"
	EventEscalationHeld      EscalationEventType = "held"
	EventEscalationResumed   EscalationEventType = "resumed"
	EventEscalationResolved  EscalationEventType = "resolved"
	EventEscalationClosed    EscalationEventType = "closed"
)

// EscalationEvent is published on every escalation transition so external
// consumers (operator consoles, widgets) can react without polling.
type EscalationEvent struct {
	ID             string              `json:"id"`
	EscalationID   string              `json:"escalation_id"`
	ConversationID string              `json:"conversation_id"`
	TenantID       string              `json:"tenant_id"`
	Type           EscalationEventType `json:"type"`
	Status         EscalationStatus    `json:"status"`
	OperatorID     *string             `json:"operator_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	Sequence       uint64              `json:"sequence,omitempty"`
}
