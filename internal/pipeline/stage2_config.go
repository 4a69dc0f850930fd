package pipeline

// ConfigStage returns stage 2 bound to resolver.
func ConfigStage(resolver ConfigResolver) Stage {
	return func(g *GenerationContext) error {
		personalityID := g.Request.PersonalityID
		cfg, source, err := resolver.Resolve(g.Ctx, personalityID, g.Request.UserID, g.Request.ChannelID)
		if err != nil {
			// Config resolution failures degrade to the request's bare
			// personality id with no overrides rather than aborting —
			// spec treats personality/config lookups as best-effort.
			g.Warn("config: resolver error, falling back to request defaults: " + err.Error())
			cfg = EffectivePersonality{ID: personalityID}
			source = "request"
		}
		g.Config = ResolvedConfig{EffectivePersonality: cfg, ConfigSource: source}
		return nil
	}
}
