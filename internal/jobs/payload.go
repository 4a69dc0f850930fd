// Package jobs implements the queue.Handler set of spec §4.2's core job
// catalogue: LLMGeneration (wiring internal/pipeline's twelve stages),
// AudioTranscription, and ImageDescription. Maintenance job types
// (Cleanup, MemoryBackfill) are catalogued in internal/queue but have no
// handler body here, per spec §1/§9's explicit exclusion.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aceteam-ai/conduit/internal/pipeline"
)

// GenerationPayload is the wire shape of an LLMGeneration job's payload, as
// written by internal/server's ingress handler and read back here. Kept
// separate from pipeline.Request so the pipeline package never needs to
// know about JSON wire conventions.
type GenerationPayload struct {
	UserID              string                `json:"userId"`
	DisplayName         string                `json:"displayName"`
	Handle              string                `json:"handle,omitempty"`
	ChannelID           string                `json:"channelId,omitempty"`
	GuildID             string                `json:"guildId,omitempty"`
	PersonalityID       string                `json:"personalityId"`
	ActivePersonaID     string                `json:"activePersonaId"`
	ActivePersonaName   string                `json:"activePersonaName,omitempty"`
	MessageText         string                `json:"messageText"`
	ConversationHistory []ConversationMessage `json:"conversationHistory,omitempty"`
	ReferencedMessages  []ReferencedMessage   `json:"referencedMessages,omitempty"`
	Attachments         []Attachment          `json:"attachments,omitempty"`
	SessionID           string                `json:"sessionId,omitempty"`
	ChannelActivated    bool                  `json:"channelActivated,omitempty"`
}

// ConversationMessage mirrors pipeline.ConversationMessage on the wire.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	PersonaID string    `json:"personaId,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
}

// ReferencedMessage mirrors pipeline.ReferencedMessage on the wire.
type ReferencedMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	PersonaID string    `json:"personaId,omitempty"`
}

// Attachment mirrors pipeline.Attachment on the wire.
type Attachment struct {
	URL         string `json:"url"`
	ContentHash string `json:"contentHash,omitempty"`
	Name        string `json:"name,omitempty"`
}

// DecodeGenerationPayload round-trips a queue.Job's generic payload map
// through JSON into a typed GenerationPayload.
func DecodeGenerationPayload(raw map[string]any) (GenerationPayload, error) {
	var p GenerationPayload
	buf, err := json.Marshal(raw)
	if err != nil {
		return p, fmt.Errorf("jobs: marshal payload: %w", err)
	}
	if err := json.Unmarshal(buf, &p); err != nil {
		return p, fmt.Errorf("jobs: unmarshal payload: %w", err)
	}
	return p, nil
}

// EncodeGenerationPayload is the inverse, used by internal/server to build
// the map handed to queue.Client.Enqueue.
func EncodeGenerationPayload(p GenerationPayload) (map[string]any, error) {
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal generation payload: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("jobs: unmarshal generation payload: %w", err)
	}
	return raw, nil
}

// toPipelineRequest converts the wire payload into pipeline.Request.
func (p GenerationPayload) toPipelineRequest() pipeline.Request {
	history := make([]pipeline.ConversationMessage, len(p.ConversationHistory))
	for i, m := range p.ConversationHistory {
		history[i] = pipeline.ConversationMessage{
			Role: m.Role, Content: m.Content, Timestamp: m.Timestamp,
			PersonaID: m.PersonaID, SenderID: m.SenderID,
		}
	}
	referenced := make([]pipeline.ReferencedMessage, len(p.ReferencedMessages))
	for i, m := range p.ReferencedMessages {
		referenced[i] = pipeline.ReferencedMessage{Content: m.Content, Timestamp: m.Timestamp, PersonaID: m.PersonaID}
	}
	attachments := make([]pipeline.Attachment, len(p.Attachments))
	for i, a := range p.Attachments {
		attachments[i] = pipeline.Attachment{URL: a.URL, ContentHash: a.ContentHash, Name: a.Name}
	}

	return pipeline.Request{
		UserID:              p.UserID,
		DisplayName:         p.DisplayName,
		Handle:              p.Handle,
		ChannelID:           p.ChannelID,
		GuildID:             p.GuildID,
		PersonalityID:       p.PersonalityID,
		ActivePersonaID:     p.ActivePersonaID,
		ActivePersonaName:   p.ActivePersonaName,
		MessageText:         p.MessageText,
		ConversationHistory: history,
		ReferencedMessages:  referenced,
		Attachments:         attachments,
		SessionID:           p.SessionID,
		ChannelActivated:    p.ChannelActivated,
	}
}
