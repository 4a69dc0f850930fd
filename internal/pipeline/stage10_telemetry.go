package pipeline

import "strings"

// protocolTerminator is the closing tag a well-formed protocol reply ends
// with; its absence alongside a natural stop is the signal stage 10 treats
// as an inferred stop-sequence activation.
const protocolTerminator = "</message>"

// StopSequenceTelemetry is stage 10: a diagnostic-only pass recording
// whether the model likely terminated on a configured stop sequence rather
// than the protocol's own terminator — a configured stop sequence is
// present in the raw reply, the provider reported a natural stop, and the
// final content does not end with the expected </message> terminator.
// This stage never alters FinalReply.
func StopSequenceTelemetry(stopSequences []string) Stage {
	return func(g *GenerationContext) error {
		if g.FinishReason != "stop" {
			return nil
		}
		if strings.HasSuffix(strings.TrimSpace(g.FinalReply), protocolTerminator) {
			return nil
		}
		for _, seq := range stopSequences {
			if seq != "" && strings.Contains(g.RawReply, seq) {
				g.StopSequenceInferred = true
				return nil
			}
		}
		return nil
	}
}
