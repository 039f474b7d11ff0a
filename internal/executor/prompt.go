package executor

import (
	"fmt"
	"strings"

	"github.com/converge-ai/support-platform/internal/model"
)

// buildExtractionPrompt grounds parameter extraction in the handler's
// instruction template, the execution history window, and the new message.
func buildExtractionPrompt(def *model.HandlerDefinition, history []model.Turn, message string) string {
	var b strings.Builder

	if def.InstructionTemplate != "" {
		b.WriteString(def.InstructionTemplate)
		b.WriteString("\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "[%s] %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User message: %s", message)

	return b.String()
}
