package pipeline

import "time"

// PrepareContext is stage 4: computes the oldest timestamp in the visible
// history, deduplicates participant persona ids (preserving first-seen
// order), and copies history into the context's canonical Messages slice.
func PrepareContext(g *GenerationContext) error {
	g.Messages = append(g.Messages, g.Request.ConversationHistory...)

	seen := make(map[string]bool, len(g.Messages)+1)
	var participants []string
	addParticipant := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		participants = append(participants, id)
	}

	var oldest time.Time
	for _, m := range g.Messages {
		addParticipant(m.PersonaID)
		if oldest.IsZero() || m.Timestamp.Before(oldest) {
			oldest = m.Timestamp
		}
	}
	for _, r := range g.Request.ReferencedMessages {
		addParticipant(r.PersonaID)
		if oldest.IsZero() || r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
	}
	addParticipant(g.Request.ActivePersonaID)
	addParticipant(g.Request.UserID)

	g.OldestTimestamp = oldest
	g.Participants = participants
	g.EffectivePersonaID = g.Request.ActivePersonaID
	return nil
}
