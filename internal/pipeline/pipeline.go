package pipeline

import "github.com/aceteam-ai/conduit/internal/llm"

// Dependencies bundles every external collaborator the full twelve-stage
// pipeline needs, so callers (internal/jobs' LLMGeneration handler) can
// build a Pipeline with one call instead of wiring twelve stages by hand.
type Dependencies struct {
	ConfigResolver     ConfigResolver
	AuthResolver       AuthResolver
	MemoryRetriever    MemoryRetriever
	MemoryWriter       MemoryWriter
	DeliveryStore      DeliveryStore
	Provider           llm.Provider
	MaxContextTokens   int
	MemoryBudget       int
	ChannelBudgetRatio float64
	StopSequences      []string
}

// New builds the full, ordered stage chain of spec §4.3.
func New(deps Dependencies) []Stage {
	return []Stage{
		Normalize,
		ConfigStage(deps.ConfigResolver),
		AuthStage(deps.AuthResolver),
		PrepareContext,
		MemoryStage(deps.MemoryRetriever, deps.MemoryBudget, deps.ChannelBudgetRatio),
		AssemblePrompt,
		BudgetStage(deps.MaxContextTokens),
		InvokeStage(deps.Provider),
		PostProcess,
		StopSequenceTelemetry(deps.StopSequences),
		PersistMemoryStage(deps.MemoryWriter),
		DeliveryStage(deps.DeliveryStore),
	}
}

// Generate runs the full pipeline over g, stopping at the first stage
// error (classification and reference-id assignment already happened
// inside InvokeStage for LLM-call failures).
func Generate(g *GenerationContext, deps Dependencies) error {
	return Run(g, New(deps)...)
}
