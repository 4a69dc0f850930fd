// Package pipeline implements the twelve-stage generation pipeline of
// spec §4.3: the hardest subsystem, transforming a validated LLMGeneration
// job into a user-visible reply. Stages are ordered pure functions over a
// shared *GenerationContext, per DESIGN NOTES' "coroutine-style stages"
// guidance — the Go-native equivalent of a generator/coroutine chain is a
// plain function pipeline over a mutable struct, no goroutines required
// since stages are strictly sequential within one generation (spec §5).
package pipeline

import (
	"context"
	"time"
)

// ConversationMessage is one turn of short-term (in-conversation) history.
type ConversationMessage struct {
	Role      string // normalized by stage 1 to "user" | "assistant" | "system" | "tool"
	Content   string
	Timestamp time.Time
	PersonaID string
	SenderID  string
}

// ReferencedMessage is a message the user explicitly quoted/replied to.
type ReferencedMessage struct {
	Content   string
	Timestamp time.Time
	PersonaID string
}

// Attachment is a staged binary the user attached to their message.
type Attachment struct {
	URL         string
	ContentHash string
	Name        string
}

// Request is the validated input to a generation job (spec §4.1's
// submitGenerate payload, after ingress validation).
type Request struct {
	UserID              string
	DisplayName         string
	Handle              string // disambiguating handle, e.g. "lbds137"
	ChannelID           string
	GuildID             string
	PersonalityID       string
	ActivePersonaID     string
	ActivePersonaName   string
	MessageText         string
	ConversationHistory []ConversationMessage
	ReferencedMessages  []ReferencedMessage
	Attachments         []Attachment
	SessionID           string
	ChannelActivated    bool
}

// ResolvedConfig is stage 2's output.
type ResolvedConfig struct {
	EffectivePersonality EffectivePersonality
	ConfigSource         string // "request" | "user-override" | "channel-override"
}

// EffectivePersonality is the personality after override cascading and
// (later) guest-mode substitution.
type EffectivePersonality struct {
	ID                   string
	DisplayName          string
	SystemPromptTemplate string
	ModelID              string
	VisionModel          string
	Temperature          float64
	MaxTokens            int
	ContextWindowBudget  int
	PersonaFields        map[string]string // name, preferredName, pronouns, description
}

// AuthResolution is stage 3's output.
type AuthResolution struct {
	APIKey      string
	IsGuestMode bool
	Provider    string
}

// MemoryResult is one retrieved long-term-memory row.
type MemoryResult struct {
	ID        string
	Text      string
	Score     float64
	ChannelID string
}

// TokenBudgetReport records stage 7's diagnostics.
type TokenBudgetReport struct {
	DroppedHistoryCount int
	DroppedMemoryCount  int
	SystemPromptTokens  int
}

// GenerationContext is the single shared mutable context threaded through
// every stage (spec §4.3).
type GenerationContext struct {
	Ctx context.Context

	Request Request

	Config ResolvedConfig
	Auth   AuthResolution

	OldestTimestamp  time.Time
	Participants     []string // deduplicated persona ids
	Messages         []ConversationMessage // canonical form, post stage 4

	EffectivePersonaID string

	Memories []MemoryResult

	SystemPrompt string

	Budget TokenBudgetReport

	RawReply     string
	FinishReason string
	Usage        struct {
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
	}

	ReasoningContent string
	FinalReply       string
	IsDuplicate      bool

	StopSequenceInferred bool

	Warnings []string

	// JobID identifies the originating queue job, used for delivery
	// hand-off (stage 12) and error correlation.
	JobID string
}

// Warn appends a non-fatal diagnostic, used by stages that must not throw
// on malformed input (e.g. stage 1's invalid-role handling).
func (g *GenerationContext) Warn(msg string) {
	g.Warnings = append(g.Warnings, msg)
}

// Stage is one pipeline step. It returns an error only for conditions the
// pipeline cannot locally recover from; recoverable conditions are handled
// in-stage via Warn and context mutation.
type Stage func(g *GenerationContext) error

// Run executes stages in order, stopping at the first error.
func Run(g *GenerationContext, stages ...Stage) error {
	for _, stage := range stages {
		if err := stage(g); err != nil {
			return err
		}
	}
	return nil
}
