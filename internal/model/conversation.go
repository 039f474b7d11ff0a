package model

import (
	"time"
)

// ConversationStatus is the lifecycle status of a conversation.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation identifies a tenant, an end user, and an ordered turn log.
// Turn content is owned by the context store; the engine owns only the
// escalation-related fields, which live on the active Escalation record.
type Conversation struct {
	ID         string             `json:"id"`
	TenantID   string             `json:"tenant_id"`
	UserID     string             `json:"user_id"`
	Status     ConversationStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	TurnCount  int                `json:"turn_count,omitempty"`
	LastTurnAt *time.Time         `json:"last_turn_at,omitempty"`
}
