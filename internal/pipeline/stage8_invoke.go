package pipeline

import "github.com/aceteam-ai/conduit/internal/llm"

// InvokeStage returns stage 8: builds the Chat-Completions request from
// the assembled prompt and canonical history, and calls provider. ctx
// cancellation aborts the in-flight HTTP call (spec §5), since provider
// implementations thread g.Ctx into their http.Request.
func InvokeStage(provider llm.Provider) Stage {
	return func(g *GenerationContext) error {
		messages := make([]llm.ChatMessage, 0, len(g.Messages)+2)
		messages = append(messages, llm.ChatMessage{Role: "system", Content: g.SystemPrompt})
		for _, m := range g.Messages {
			messages = append(messages, llm.ChatMessage{Role: m.Role, Content: m.Content})
		}
		messages = append(messages, llm.ChatMessage{Role: "user", Content: g.Request.MessageText})

		persona := g.Config.EffectivePersonality
		resp, err := provider.Chat(g.Ctx, g.Auth.APIKey, llm.ChatRequest{
			Messages: messages,
			Params: llm.SamplingParams{
				Model:       persona.ModelID,
				Temperature: persona.Temperature,
				MaxTokens:   persona.MaxTokens,
			},
		})
		if err != nil {
			return Classify(err)
		}

		g.RawReply = resp.Content
		g.FinishReason = resp.FinishReason
		g.Usage.PromptTokens = resp.Usage.PromptTokens
		g.Usage.CompletionTokens = resp.Usage.CompletionTokens
		g.Usage.TotalTokens = resp.Usage.TotalTokens
		return nil
	}
}
