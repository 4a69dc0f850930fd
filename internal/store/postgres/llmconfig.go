package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/models"
)

func (s *Store) GetLLMConfig(ctx context.Context, id string) (*models.LLMConfig, error) {
	query, _, err := s.goqu.From(s.tableLLMConfigs).
		Select("id", "model_id", "temperature", "top_p", "max_tokens", "stop_sequences",
			"reasoning_enabled", "reasoning_effort").
		Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get llm_config query: %w", err)
	}

	var c models.LLMConfig
	var stopSeq string
	err = s.db.QueryRowContext(ctx, query).Scan(&c.ID, &c.ModelID, &c.Temperature, &c.TopP, &c.MaxTokens,
		&stopSeq, &c.Reasoning.Enabled, &c.Reasoning.Effort)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get llm_config %q: %w", id, err)
	}
	c.StopSequences = splitList(stopSeq)
	return &c, nil
}

func (s *Store) UpsertLLMConfig(ctx context.Context, c models.LLMConfig) error {
	query, _, err := s.goqu.Insert(s.tableLLMConfigs).Rows(goqu.Record{
		"id": c.ID, "model_id": c.ModelID, "temperature": c.Temperature, "top_p": c.TopP,
		"max_tokens": c.MaxTokens, "stop_sequences": joinList(c.StopSequences),
		"reasoning_enabled": c.Reasoning.Enabled, "reasoning_effort": c.Reasoning.Effort,
	}).OnConflict(goqu.DoUpdate("id", goqu.Record{
		"model_id": c.ModelID, "temperature": c.Temperature, "top_p": c.TopP,
		"max_tokens": c.MaxTokens, "stop_sequences": joinList(c.StopSequences),
		"reasoning_enabled": c.Reasoning.Enabled, "reasoning_effort": c.Reasoning.Effort,
	})).ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert llm_config query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("upsert llm_config %q: %w", c.ID, err)
	}
	return nil
}

// GetUserPersonalityConfig resolves the per-user override row used by
// internal/resolvers' config cascade (spec §4.3 stage 2).
func (s *Store) GetUserPersonalityConfig(ctx context.Context, userID, personalityID string) (*models.UserPersonalityConfig, error) {
	query, _, err := s.goqu.From(s.tablePersonalityCfg).
		Select("user_id", "personality_id", "persona_override", "llm_config_id").
		Where(goqu.I("user_id").Eq(userID), goqu.I("personality_id").Eq(personalityID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get user_personality_config query: %w", err)
	}

	var cfg models.UserPersonalityConfig
	err = s.db.QueryRowContext(ctx, query).Scan(&cfg.UserID, &cfg.PersonalityID, &cfg.PersonaOverride, &cfg.LLMConfigID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user_personality_config for %q/%q: %w", userID, personalityID, err)
	}
	return &cfg, nil
}

func (s *Store) UpsertUserPersonalityConfig(ctx context.Context, cfg models.UserPersonalityConfig) error {
	query, _, err := s.goqu.Insert(s.tablePersonalityCfg).Rows(goqu.Record{
		"user_id": cfg.UserID, "personality_id": cfg.PersonalityID,
		"persona_override": cfg.PersonaOverride, "llm_config_id": cfg.LLMConfigID,
	}).OnConflict(goqu.DoUpdate("user_id, personality_id", goqu.Record{
		"persona_override": cfg.PersonaOverride, "llm_config_id": cfg.LLMConfigID,
	})).ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert user_personality_config query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("upsert user_personality_config: %w", err)
	}
	return nil
}

func (s *Store) DeleteUserPersonalityConfig(ctx context.Context, userID, personalityID string) error {
	query, _, err := s.goqu.Delete(s.tablePersonalityCfg).
		Where(goqu.I("user_id").Eq(userID), goqu.I("personality_id").Eq(personalityID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete user_personality_config query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete user_personality_config: %w", err)
	}
	return nil
}
