package pipeline

import "strings"

// duplicateWindowSize is how many of the most recent assistant messages
// are compared against the new reply for exact-duplicate detection.
const duplicateWindowSize = 5

// duplicateScanDepth bounds how far back into history the scan looks while
// collecting those assistant messages, per spec §4.3 stage 9's "bounded
// scan depth 100".
const duplicateScanDepth = 100

// PostProcess is stage 9: separates hidden <reasoning> content from the
// visible reply, strips residual formatting artifacts, and flags exact
// duplicates of a recent assistant reply.
func PostProcess(g *GenerationContext) error {
	reasoning, visible := extractReasoning(g.RawReply)
	g.ReasoningContent = reasoning
	g.FinalReply = stripArtifacts(visible)
	g.IsDuplicate = isDuplicateReply(g.FinalReply, g.Messages)
	return nil
}

const (
	reasoningOpen  = "<reasoning>"
	reasoningClose = "</reasoning>"
)

// extractReasoning pulls a leading <reasoning>...</reasoning> block out of
// raw, returning (reasoningText, remainder). If no well-formed block is
// present, the whole input is returned as the visible remainder.
func extractReasoning(raw string) (reasoning, visible string) {
	if !strings.HasPrefix(raw, reasoningOpen) {
		return "", raw
	}
	rest := raw[len(reasoningOpen):]
	end := strings.Index(rest, reasoningClose)
	if end < 0 {
		return "", raw
	}
	return rest[:end], rest[end+len(reasoningClose):]
}

// stripArtifacts trims whitespace and a small set of formatting artifacts
// models sometimes leave behind (stray leading role labels, wrapping
// asterisked stage directions are left intact — only whitespace and null
// bytes are stripped here, matching the conservative normalization stage 1
// already applies to inbound text).
func stripArtifacts(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "\x00")
	return s
}

// isDuplicateReply reports whether reply exactly matches one of the last
// duplicateWindowSize assistant messages found within the most recent
// duplicateScanDepth messages of history.
func isDuplicateReply(reply string, history []ConversationMessage) bool {
	if reply == "" {
		return false
	}

	start := 0
	if len(history) > duplicateScanDepth {
		start = len(history) - duplicateScanDepth
	}
	window := history[start:]

	found := 0
	for i := len(window) - 1; i >= 0 && found < duplicateWindowSize; i-- {
		if window[i].Role != "assistant" {
			continue
		}
		found++
		if window[i].Content == reply {
			return true
		}
	}
	return false
}
