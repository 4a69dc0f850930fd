package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/models"
)

func (s *Store) GetActivatedChannel(ctx context.Context, channelID string) (*models.ActivatedChannel, error) {
	query, _, err := s.goqu.From(s.tableChannels).
		Select("channel_id", "guild_id", "personality_id", "config_overrides", "created_by", "created_at").
		Where(goqu.I("channel_id").Eq(channelID)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get channel query: %w", err)
	}

	var c models.ActivatedChannel
	var overridesJSON []byte
	err = s.db.QueryRowContext(ctx, query).Scan(&c.ChannelID, &c.GuildID, &c.PersonalityID, &overridesJSON, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %q: %w", channelID, err)
	}
	if len(overridesJSON) > 0 {
		if err := json.Unmarshal(overridesJSON, &c.ConfigOverrides); err != nil {
			return nil, fmt.Errorf("unmarshal config_overrides for %q: %w", channelID, err)
		}
	}
	return &c, nil
}

// ListActivatedChannelsByGuild returns up to limit channels for guildID,
// enforcing spec §6's bounded-500 page size at the call site (ingress
// handler), not here — the store applies whatever limit it's given.
func (s *Store) ListActivatedChannelsByGuild(ctx context.Context, guildID string, limit int) ([]models.ActivatedChannel, error) {
	query, _, err := s.goqu.From(s.tableChannels).
		Select("channel_id", "guild_id", "personality_id", "config_overrides", "created_by", "created_at").
		Where(goqu.I("guild_id").Eq(guildID)).
		Order(goqu.I("created_at").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list channels query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list channels for guild %q: %w", guildID, err)
	}
	defer rows.Close()

	var result []models.ActivatedChannel
	for rows.Next() {
		var c models.ActivatedChannel
		var overridesJSON []byte
		if err := rows.Scan(&c.ChannelID, &c.GuildID, &c.PersonalityID, &overridesJSON, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel row: %w", err)
		}
		if len(overridesJSON) > 0 {
			if err := json.Unmarshal(overridesJSON, &c.ConfigOverrides); err != nil {
				return nil, fmt.Errorf("unmarshal config_overrides: %w", err)
			}
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) UpsertActivatedChannel(ctx context.Context, c models.ActivatedChannel) error {
	overridesJSON, err := json.Marshal(c.ConfigOverrides)
	if err != nil {
		return fmt.Errorf("marshal config_overrides: %w", err)
	}

	query, _, err := s.goqu.Insert(s.tableChannels).Rows(goqu.Record{
		"channel_id": c.ChannelID, "guild_id": c.GuildID, "personality_id": c.PersonalityID,
		"config_overrides": overridesJSON, "created_by": c.CreatedBy,
	}).OnConflict(goqu.DoUpdate("channel_id", goqu.Record{
		"personality_id":   c.PersonalityID,
		"config_overrides": overridesJSON,
	})).ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert channel query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("upsert channel %q: %w", c.ChannelID, err)
	}
	return nil
}

func (s *Store) DeleteActivatedChannel(ctx context.Context, channelID string) error {
	query, _, err := s.goqu.Delete(s.tableChannels).Where(goqu.I("channel_id").Eq(channelID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete channel query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete channel %q: %w", channelID, err)
	}
	return nil
}
