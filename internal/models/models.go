// Package models holds the persistent entity shapes shared across Conduit's
// stores, resolvers and pipeline. Types here are storage-agnostic; mapping to
// Postgres rows lives in internal/store/postgres, mapping to vector rows
// lives in internal/memory.
package models

import "time"

// User is the system's stable identity record.
type User struct {
	ID              string // internal UUID
	ExternalID      string // platform snowflake
	DefaultPersona  string // persona UUID, empty until one exists
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Persona is a user-owned identity a personality interacts with.
type Persona struct {
	ID                          string
	UserID                      string
	Name                        string
	PreferredName               string
	Pronouns                    string
	Description                 string
	ShareLTMAcrossPersonalities bool
	CreatedAt                   time.Time
}

// Visibility is a Personality's sharing scope.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Personality is the configurable AI character a user talks to.
type Personality struct {
	ID                   string
	Slug                 string
	DisplayName          string
	SystemPromptTemplate string // literal template or JSON-encoded structured protocol
	ModelID              string
	VisionModel          string
	Temperature          float64
	MaxTokens            int
	ContextWindowBudget  int
	Visibility           Visibility
	OwnerID              string
	CoOwnerIDs           []string
	AvatarBlobKey        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CredentialType enumerates what a UserCredential authenticates.
type CredentialType string

const (
	CredentialTypeLLMAPIKey  CredentialType = "llm_api_key"
	CredentialTypeSessionKey CredentialType = "session_key"
)

// UserCredential stores an encrypted third-party credential.
type UserCredential struct {
	ID         string
	UserID     string
	ServiceTag string // e.g. "openrouter", "openai"
	Type       CredentialType
	Ciphertext string // crypto.Encrypt output, "enc:" prefixed
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserPersonalityConfig composite-keys a per-user override on a personality.
type UserPersonalityConfig struct {
	UserID          string
	PersonalityID   string
	PersonaOverride string // persona id, empty if unset
	LLMConfigID     string // empty if unset
}

// ReasoningOptions controls whether/how a provider surfaces chain-of-thought.
type ReasoningOptions struct {
	Enabled bool
	Effort  string // "low" | "medium" | "high"
}

// LLMConfig is an immutable (aside from explicit edit) sampling profile.
type LLMConfig struct {
	ID            string
	ModelID       string
	Temperature   float64
	TopP          float64
	MaxTokens     int
	StopSequences []string
	Reasoning     ReasoningOptions
}

// DenylistType is the subject of a DenylistEntry.
type DenylistType string

const (
	DenylistTypeUser  DenylistType = "USER"
	DenylistTypeGuild DenylistType = "GUILD"
)

// DenylistScope is where a DenylistEntry applies.
type DenylistScope string

const (
	DenylistScopeBot     DenylistScope = "BOT"
	DenylistScopeGuild   DenylistScope = "GUILD"
	DenylistScopeChannel DenylistScope = "CHANNEL"
)

// DenylistEntry blocks a user or guild at a given scope.
//
// Invariants enforced by callers constructing one (see internal/server):
// Type == GUILD implies Scope == BOT; Scope == BOT iff ScopeID == "*".
type DenylistEntry struct {
	ID        string
	Type      DenylistType
	DiscordID string
	Scope     DenylistScope
	ScopeID   string
	Reason    string
	AddedBy   string
	CreatedAt time.Time
}

// Validate enforces the invariants from the data model.
func (e DenylistEntry) Validate() error {
	if e.Type == DenylistTypeGuild && e.Scope != DenylistScopeBot {
		return errInvalidDenylist("type=GUILD requires scope=BOT")
	}
	if e.Scope == DenylistScopeBot && e.ScopeID != "*" {
		return errInvalidDenylist("scope=BOT requires scopeId=\"*\"")
	}
	if e.Scope != DenylistScopeBot && e.ScopeID == "*" {
		return errInvalidDenylist("scopeId=\"*\" is reserved for scope=BOT")
	}
	return nil
}

type denylistError string

func (e denylistError) Error() string { return string(e) }

func errInvalidDenylist(msg string) error { return denylistError("denylist: " + msg) }

// ActivatedChannel records that a channel has an active personality.
type ActivatedChannel struct {
	ChannelID         string
	GuildID           string
	PersonalityID     string
	ConfigOverrides   map[string]any
	CreatedBy         string
	CreatedAt         time.Time
}

// JobState is the lifecycle position of a Job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateActive    JobState = "active"
	JobStateDelayed   JobState = "delayed"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Job is the durable queue record.
type Job struct {
	ID          string
	Type        string
	Payload     map[string]any
	State       JobState
	Attempts    int
	MaxAttempts int
	Result      map[string]any
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeliveryState tracks user-visible delivery of a JobResult.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "PENDING_DELIVERY"
	DeliveryDelivered DeliveryState = "DELIVERED"
)

// JobResult is the persisted outcome of a completed Job.
type JobResult struct {
	JobID     string
	Payload   map[string]any
	Delivery  DeliveryState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemoryScope is the visibility of a Memory entry.
type MemoryScope string

const (
	MemoryScopeGlobal   MemoryScope = "global"
	MemoryScopePersonal MemoryScope = "personal"
	MemoryScopeSession  MemoryScope = "session"
)

// Memory is one long-term-memory row, persona-scoped.
type Memory struct {
	ID            string // UUIDv5(namespace, personaID+":"+personalityID+":"+contentHash)
	PersonaID     string
	PersonalityID string
	Text          string
	Embedding     []float32
	Scope         MemoryScope
	ChannelID     string
	GuildID       string
	Senders       []string
	CreatedAt     time.Time
}

// PendingMemory stages a Memory write until the vector insert succeeds.
type PendingMemory struct {
	ID        string
	Memory    Memory
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// ConversationHistoryTombstone marks a hard-deleted message.
type ConversationHistoryTombstone struct {
	MessageID string
	DeletedAt time.Time
}

// DeduplicationEntry maps a request fingerprint to the job it produced.
type DeduplicationEntry struct {
	Fingerprint string
	JobID       string
	ExpiresAt   time.Time
}
