package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageText validates inbound message text.
func ValidateMessageText(text string) error {
	if len(text) == 0 {
		return errors.New("text cannot be empty")
	}
	if len(text) > 100000 { // ~100KB limit
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateTenantID validates a tenant ID.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("tenant ID exceeds maximum length")
	}
	return nil
}

// ValidateHandlerName validates an explicit handler name.
func ValidateHandlerName(name string) error {
	if len(name) > 100 {
		return errors.New("handler name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("handler name must be valid UTF-8")
	}
	return nil
}

// ValidateEscalationReason validates an escalation reason.
func ValidateEscalationReason(reason string) error {
	if len(reason) == 0 {
		return errors.New("reason cannot be empty")
	}
	if len(reason) > 500 {
		return errors.New("reason exceeds maximum length")
	}
	if !utf8.ValidString(reason) {
		return errors.New("reason must be valid UTF-8")
	}
	return nil
}
