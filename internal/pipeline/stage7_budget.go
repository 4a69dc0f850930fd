package pipeline

// estimateTokens is a conservative chars/4 approximation, matching the
// teacher's token-estimation heuristic (no tokenizer dependency wired,
// since none of the pack's example repos import one for this purpose).
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// BudgetStage returns stage 7: iteratively drops the oldest history
// message, then the lowest-ranked memory, until the estimated prompt fits
// within maxContextTokens, per spec §4.3 stage 7.
func BudgetStage(maxContextTokens int) Stage {
	return func(g *GenerationContext) error {
		if maxContextTokens <= 0 {
			maxContextTokens = g.Config.EffectivePersonality.ContextWindowBudget
		}
		if maxContextTokens <= 0 {
			return nil
		}

		systemTokens := estimateTokens(g.SystemPrompt)
		g.Budget.SystemPromptTokens = systemTokens

		total := func() int {
			t := systemTokens + estimateTokens(g.Request.MessageText)
			for _, m := range g.Messages {
				t += estimateTokens(m.Content)
			}
			for _, mem := range g.Memories {
				t += estimateTokens(mem.Text)
			}
			return t
		}

		for total() > maxContextTokens {
			if len(g.Messages) > 0 {
				g.Messages = g.Messages[1:]
				g.Budget.DroppedHistoryCount++
				continue
			}
			if len(g.Memories) > 0 {
				lowest := lowestRankedIndex(g.Memories)
				g.Memories = append(g.Memories[:lowest], g.Memories[lowest+1:]...)
				g.Budget.DroppedMemoryCount++
				continue
			}
			// Nothing left to drop; accept the remaining (system prompt +
			// latest message) budget overrun rather than looping forever.
			break
		}
		return nil
	}
}

func lowestRankedIndex(memories []MemoryResult) int {
	lowest := 0
	for i, m := range memories {
		if m.Score < memories[lowest].Score {
			lowest = i
		}
	}
	return lowest
}
