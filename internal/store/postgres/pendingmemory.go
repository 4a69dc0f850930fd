package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/models"
)

func (s *Store) CreatePendingMemory(ctx context.Context, pm models.PendingMemory) error {
	m := pm.Memory
	query, _, err := s.goqu.Insert(s.tablePendingMemory).Rows(goqu.Record{
		"id": pm.ID, "persona_id": m.PersonaID, "personality_id": m.PersonalityID, "text": m.Text,
		"scope": string(m.Scope), "channel_id": m.ChannelID, "guild_id": m.GuildID,
		"senders": joinList(m.Senders), "attempts": pm.Attempts, "last_error": pm.LastError,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build create pending_memory query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create pending_memory %q: %w", pm.ID, err)
	}
	return nil
}

func (s *Store) GetPendingMemory(ctx context.Context, id string) (*models.PendingMemory, error) {
	query, _, err := s.goqu.From(s.tablePendingMemory).
		Select("id", "persona_id", "personality_id", "text", "scope", "channel_id", "guild_id",
			"senders", "attempts", "last_error", "created_at").
		Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get pending_memory query: %w", err)
	}

	var pm models.PendingMemory
	var scope, senders string
	err = s.db.QueryRowContext(ctx, query).Scan(&pm.ID, &pm.Memory.PersonaID, &pm.Memory.PersonalityID,
		&pm.Memory.Text, &scope, &pm.Memory.ChannelID, &pm.Memory.GuildID, &senders,
		&pm.Attempts, &pm.LastError, &pm.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending_memory %q: %w", id, err)
	}
	pm.Memory.Scope = models.MemoryScope(scope)
	pm.Memory.Senders = splitList(senders)
	return &pm, nil
}

// RetainPendingMemory increments the attempt counter and records the last
// failure, leaving the row in place for a future retry (spec §4.3 stage 11:
// "retain and increment attempts on failure").
func (s *Store) RetainPendingMemory(ctx context.Context, id, lastError string) error {
	query, _, err := s.goqu.Update(s.tablePendingMemory).Set(goqu.Record{
		"attempts":   goqu.L("attempts + 1"),
		"last_error": lastError,
	}).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build retain pending_memory query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("retain pending_memory %q: %w", id, err)
	}
	return nil
}

// DeletePendingMemory removes the staging row once the vector insert
// succeeds (spec §4.3 stage 11: "delete pending on success").
func (s *Store) DeletePendingMemory(ctx context.Context, id string) error {
	query, _, err := s.goqu.Delete(s.tablePendingMemory).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete pending_memory query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete pending_memory %q: %w", id, err)
	}
	return nil
}
