package pipeline

import "strings"

// Normalize is stage 1: role case-coercion and structural cleanup.
// It never returns an error — malformed input degrades via Warn rather
// than aborting the generation, per spec §4.3 stage 1's "never throw".
func Normalize(g *GenerationContext) error {
	for i := range g.Request.ConversationHistory {
		msg := &g.Request.ConversationHistory[i]
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case "user", "assistant":
			msg.Role = role
		case "system", "tool":
			msg.Role = role
		default:
			g.Warn("normalize: unrecognized role " + msg.Role + ", coercing to user")
			msg.Role = "user"
		}
		msg.Content = strings.TrimRight(msg.Content, "\x00")
	}

	g.Request.MessageText = strings.TrimRight(g.Request.MessageText, "\x00")
	return nil
}
