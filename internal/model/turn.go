// Package model defines data structures for the routing and escalation engine.
package model

import (
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser     Role = "user"
	RoleHandler  Role = "handler"
	RoleOperator Role = "operator"
	RoleSystem   Role = "system"
)

// Turn is a single message in a conversation. Turns are immutable once
// appended; ordering within a conversation is given by the store sequence.
type Turn struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`

	// Content
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Handler *string `json:"handler,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`

	// Stream metadata (populated on read)
	Sequence uint64 `json:"sequence,omitempty"`
}

// InboundMessage is the request to process an end-user message.
type InboundMessage struct {
	ConversationID  string `json:"conversation_id"`
	Text            string `json:"text"`
	ExplicitHandler string `json:"explicit_handler,omitempty"`
}
