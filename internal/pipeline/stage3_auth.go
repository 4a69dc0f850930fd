package pipeline

import "strings"

// FreeModelFallback is substituted for EffectivePersonality.ModelID when a
// generation degrades to guest mode, per spec §4.3 stage 3 (E1 scenario).
const FreeModelFallback = "openrouter/auto:free"

// isFreeModel reports whether modelID already names a free-tier variant, so
// guest-mode degradation doesn't downgrade a model that's already free.
func isFreeModel(modelID string) bool {
	return strings.HasSuffix(modelID, ":free")
}

// AuthStage returns stage 3 bound to resolver. Auth resolution never fails
// the generation: any resolver error degrades to guest mode with the free
// model substituted, per spec's "never fail, degrade to guest".
func AuthStage(resolver AuthResolver) Stage {
	return func(g *GenerationContext) error {
		auth, err := resolver.Resolve(g.Ctx, g.Request.UserID, g.Config.EffectivePersonality)
		if err != nil {
			g.Warn("auth: resolver error, degrading to guest mode: " + err.Error())
			auth = AuthResolution{IsGuestMode: true}
		}

		if auth.IsGuestMode {
			g.Config.EffectivePersonality.VisionModel = ""
			if isFreeModel(g.Config.EffectivePersonality.ModelID) {
				g.Warn("auth: no BYOK credential available, running in guest mode with " + g.Config.EffectivePersonality.ModelID)
			} else {
				g.Config.EffectivePersonality.ModelID = FreeModelFallback
				g.Warn("auth: no BYOK credential available, running in guest mode with " + FreeModelFallback)
			}
		}

		g.Auth = auth
		return nil
	}
}
