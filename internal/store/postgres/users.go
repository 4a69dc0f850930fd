package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/models"
)

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	query, _, err := s.goqu.From(s.tableUsers).
		Select("id", "external_id", "default_persona", "created_at", "updated_at").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get user query: %w", err)
	}

	var u models.User
	err = s.db.QueryRowContext(ctx, query).Scan(&u.ID, &u.ExternalID, &u.DefaultPersona, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", id, err)
	}
	return &u, nil
}

// UpsertUser creates or refreshes a user row, keyed by id.
func (s *Store) UpsertUser(ctx context.Context, u models.User) error {
	now := time.Now().UTC()
	query, _, err := s.goqu.Insert(s.tableUsers).Rows(
		goqu.Record{
			"id":              u.ID,
			"external_id":     u.ExternalID,
			"default_persona": u.DefaultPersona,
			"updated_at":      now,
		},
	).OnConflict(goqu.DoUpdate("id", goqu.Record{
		"external_id":     u.ExternalID,
		"default_persona": u.DefaultPersona,
		"updated_at":      now,
	})).ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert user query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("upsert user %q: %w", u.ID, err)
	}
	return nil
}
