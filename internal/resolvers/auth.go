package resolvers

import (
	"context"
	"strings"

	"github.com/aceteam-ai/conduit/internal/models"
	"github.com/aceteam-ai/conduit/internal/pipeline"
)

// AuthResolver implements pipeline.AuthResolver (spec §4.3 stage 3): prefer
// a user's bring-your-own-key credential for the configured model's
// provider, falling back to guest mode when none is on file.
type AuthResolver struct {
	credentials *CredentialCache
}

// NewAuthResolver builds a resolver backed by a credential cache.
func NewAuthResolver(credentials *CredentialCache) *AuthResolver {
	return &AuthResolver{credentials: credentials}
}

var _ pipeline.AuthResolver = (*AuthResolver)(nil)

// Resolve implements pipeline.AuthResolver.
func (r *AuthResolver) Resolve(ctx context.Context, userID string, cfg pipeline.EffectivePersonality) (pipeline.AuthResolution, error) {
	if userID == "" {
		return pipeline.AuthResolution{IsGuestMode: true}, nil
	}

	provider := providerFromModelID(cfg.ModelID)
	cred, err := r.credentials.Get(ctx, userID, provider, models.CredentialTypeLLMAPIKey)
	if err != nil {
		return pipeline.AuthResolution{}, err
	}
	if cred == nil || cred.Ciphertext == "" {
		return pipeline.AuthResolution{IsGuestMode: true}, nil
	}

	return pipeline.AuthResolution{
		APIKey:      cred.Ciphertext,
		IsGuestMode: false,
		Provider:    provider,
	}, nil
}

// providerFromModelID extracts the provider tag from a "provider/model"
// style model id (e.g. "openrouter/auto:free" -> "openrouter"), defaulting
// to "openrouter" when the id carries no provider segment.
func providerFromModelID(modelID string) string {
	if i := strings.IndexByte(modelID, '/'); i > 0 {
		return modelID[:i]
	}
	return "openrouter"
}
