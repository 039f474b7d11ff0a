package router

import (
	"fmt"
	"strings"

	"github.com/converge-ai/support-platform/internal/model"
)

// buildClassificationPrompt assembles the routing prompt: enabled handlers
// with one-line descriptions, the bounded history window, and the new
// message. The recency bias for short follow-ups is expressed here in the
// prompt; there is no code-level override.
func buildClassificationPrompt(handlers []model.HandlerDefinition, history []model.Turn, message string) string {
	var b strings.Builder

	b.WriteString("You are a routing classifier that assigns user messages to specialized handlers.\n\nAvailable handlers:\n")
	for _, h := range handlers {
		fmt.Fprintf(&b, "- %s: %s\n", h.Name, h.Description)
	}

	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, turn := range history {
			label := string(turn.Role)
			if turn.Handler != nil {
				label = fmt.Sprintf("handler:%s", *turn.Handler)
			}
			fmt.Fprintf(&b, "[%s] %s\n", label, turn.Content)
		}
		if prev := lastRespondingHandler(history); prev != "" {
			fmt.Fprintf(&b, "\nThe previous answer came from %s. If the new message is a short follow-up (pronouns, \"and that one?\", \"what about...\"), prefer %s.\n", prev, prev)
		}
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- ONE clear question matching ONE handler: respond with that handler name\n")
	b.WriteString("- Two or more DIFFERENT questions: respond with \"MULTI_INTENT\"\n")
	b.WriteString("- Ambiguous or unrelated to every handler: respond with \"UNCLEAR\"\n")

	names := make([]string, len(handlers))
	for i, h := range handlers {
		names[i] = fmt.Sprintf("%q", h.Name)
	}
	fmt.Fprintf(&b, "\nRespond with ONLY ONE of: %s, \"MULTI_INTENT\", \"UNCLEAR\". NO explanations, NO additional text.\n", strings.Join(names, ", "))

	fmt.Fprintf(&b, "\nNew message: %s", message)

	return b.String()
}

func lastRespondingHandler(history []model.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleHandler && history[i].Handler != nil {
			return *history[i].Handler
		}
	}
	return ""
}
