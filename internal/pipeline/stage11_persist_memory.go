package pipeline

// PersistMemoryStage returns stage 11: stages the exchange as a pending
// memory, attempts to commit it to the vector store, and on failure
// retains the pending row with an incremented attempt count rather than
// failing the generation — memory persistence is best-effort (spec §4.3
// stage 11: "never fail generation").
func PersistMemoryStage(writer MemoryWriter) Stage {
	return func(g *GenerationContext) error {
		if g.FinalReply == "" || g.IsDuplicate {
			return nil
		}

		text := g.Request.MessageText + "\n" + g.FinalReply
		pendingID, err := writer.StagePending(g.Ctx, g.EffectivePersonaID, g.Config.EffectivePersonality.ID, text)
		if err != nil {
			g.Warn("memory: failed to stage pending memory: " + err.Error())
			return nil
		}

		if err := writer.Commit(g.Ctx, pendingID); err != nil {
			g.Warn("memory: failed to commit memory, retaining for retry: " + err.Error())
			if retainErr := writer.RetainForRetry(g.Ctx, pendingID); retainErr != nil {
				g.Warn("memory: failed to retain pending memory: " + retainErr.Error())
			}
		}
		return nil
	}
}
