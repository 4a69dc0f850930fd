package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/models"
)

var personalityColumns = []any{
	"id", "slug", "display_name", "system_prompt_template", "model_id", "vision_model",
	"temperature", "max_tokens", "context_window_budget", "visibility", "owner_id",
	"co_owner_ids", "avatar_blob_key", "created_at", "updated_at",
}

// joinList/splitList store string slices as a comma-joined column rather
// than a native array type, keeping the store on plain database/sql
// scanning without an array-aware driver extension.
func joinList(xs []string) string { return strings.Join(xs, ",") }

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func scanPersonality(row *sql.Row) (*models.Personality, error) {
	var p models.Personality
	var coOwners, visibility string
	err := row.Scan(&p.ID, &p.Slug, &p.DisplayName, &p.SystemPromptTemplate, &p.ModelID, &p.VisionModel,
		&p.Temperature, &p.MaxTokens, &p.ContextWindowBudget, &visibility, &p.OwnerID,
		&coOwners, &p.AvatarBlobKey, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Visibility = models.Visibility(visibility)
	p.CoOwnerIDs = splitList(coOwners)
	return &p, nil
}

func (s *Store) GetPersonality(ctx context.Context, id string) (*models.Personality, error) {
	query, _, err := s.goqu.From(s.tablePersonalities).Select(personalityColumns...).
		Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get personality query: %w", err)
	}
	p, err := scanPersonality(s.db.QueryRowContext(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("get personality %q: %w", id, err)
	}
	return p, nil
}

// GetPersonalityBySlug looks a personality up by its unique, immutable
// slug (spec §3 invariant).
func (s *Store) GetPersonalityBySlug(ctx context.Context, slug string) (*models.Personality, error) {
	query, _, err := s.goqu.From(s.tablePersonalities).Select(personalityColumns...).
		Where(goqu.I("slug").Eq(slug)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get personality by slug query: %w", err)
	}
	p, err := scanPersonality(s.db.QueryRowContext(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("get personality by slug %q: %w", slug, err)
	}
	return p, nil
}

// UpdatePersonality never touches slug: once minted a personality's slug
// is immutable, per spec §3's invariant.
func (s *Store) UpdatePersonality(ctx context.Context, p models.Personality) error {
	now := time.Now().UTC()
	query, _, err := s.goqu.Update(s.tablePersonalities).Set(goqu.Record{
		"display_name":           p.DisplayName,
		"system_prompt_template": p.SystemPromptTemplate,
		"model_id":               p.ModelID,
		"vision_model":           p.VisionModel,
		"temperature":            p.Temperature,
		"max_tokens":             p.MaxTokens,
		"context_window_budget":  p.ContextWindowBudget,
		"visibility":             string(p.Visibility),
		"co_owner_ids":           joinList(p.CoOwnerIDs),
		"avatar_blob_key":        p.AvatarBlobKey,
		"updated_at":             now,
	}).Where(goqu.I("id").Eq(p.ID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build update personality query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("update personality %q: %w", p.ID, err)
	}
	return nil
}

// ListPersonalitiesWithAvatars returns every personality that has a
// non-empty avatar blob key, for internal/blob's startup avatar resync
// (spec §6: "missing entries resynced at startup").
func (s *Store) ListPersonalitiesWithAvatars(ctx context.Context) ([]*models.Personality, error) {
	query, _, err := s.goqu.From(s.tablePersonalities).Select(personalityColumns...).
		Where(goqu.I("avatar_blob_key").Neq("")).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list personalities with avatars query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list personalities with avatars: %w", err)
	}
	defer rows.Close()

	var out []*models.Personality
	for rows.Next() {
		var p models.Personality
		var coOwners, visibility string
		if err := rows.Scan(&p.ID, &p.Slug, &p.DisplayName, &p.SystemPromptTemplate, &p.ModelID, &p.VisionModel,
			&p.Temperature, &p.MaxTokens, &p.ContextWindowBudget, &visibility, &p.OwnerID,
			&coOwners, &p.AvatarBlobKey, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan personality with avatar: %w", err)
		}
		p.Visibility = models.Visibility(visibility)
		p.CoOwnerIDs = splitList(coOwners)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list personalities with avatars: %w", err)
	}
	return out, nil
}

func (s *Store) CreatePersonality(ctx context.Context, p models.Personality) error {
	query, _, err := s.goqu.Insert(s.tablePersonalities).Rows(goqu.Record{
		"id": p.ID, "slug": p.Slug, "display_name": p.DisplayName,
		"system_prompt_template": p.SystemPromptTemplate, "model_id": p.ModelID,
		"vision_model": p.VisionModel, "temperature": p.Temperature, "max_tokens": p.MaxTokens,
		"context_window_budget": p.ContextWindowBudget, "visibility": string(p.Visibility),
		"owner_id": p.OwnerID, "co_owner_ids": joinList(p.CoOwnerIDs),
		"avatar_blob_key": p.AvatarBlobKey,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build create personality query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create personality %q: %w", p.ID, err)
	}
	return nil
}
