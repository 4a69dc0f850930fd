package pipeline

// DefaultChannelBudgetRatio is used when a caller doesn't specify one.
const DefaultChannelBudgetRatio = 0.5

// ClampChannelBudgetRatio enforces the [0,1] invariant of spec §4.3 stage 5
// / §8's boundary-behavior list.
func ClampChannelBudgetRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// MemoryStage returns stage 5 bound to retriever. A retriever error degrades
// to an empty memory set rather than failing the generation — memory is an
// enrichment, not a hard dependency.
func MemoryStage(retriever MemoryRetriever, totalBudget int, channelBudgetRatio float64) Stage {
	ratio := ClampChannelBudgetRatio(channelBudgetRatio)
	return func(g *GenerationContext) error {
		results, err := retriever.Waterfall(g.Ctx, WaterfallParams{
			PersonaID:          g.EffectivePersonaID,
			PersonalityID:      g.Config.EffectivePersonality.ID,
			ChannelID:          g.Request.ChannelID,
			QueryText:          g.Request.MessageText,
			TotalBudget:        totalBudget,
			ChannelBudgetRatio: ratio,
			ExcludeNewerThan:   g.OldestTimestamp,
		})
		if err != nil {
			g.Warn("memory: retrieval failed, continuing without long-term memory: " + err.Error())
			return nil
		}
		g.Memories = results
		return nil
	}
}
