package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/models"
)

var personaColumns = []any{
	"id", "user_id", "name", "preferred_name", "pronouns", "description",
	"share_ltm_across_personalities", "created_at",
}

func scanPersona(row *sql.Row) (*models.Persona, error) {
	var p models.Persona
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.PreferredName, &p.Pronouns, &p.Description,
		&p.ShareLTMAcrossPersonalities, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPersona(ctx context.Context, id string) (*models.Persona, error) {
	query, _, err := s.goqu.From(s.tablePersonas).Select(personaColumns...).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get persona query: %w", err)
	}
	p, err := scanPersona(s.db.QueryRowContext(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("get persona %q: %w", id, err)
	}
	return p, nil
}

func (s *Store) ListPersonasByUser(ctx context.Context, userID string) ([]models.Persona, error) {
	query, _, err := s.goqu.From(s.tablePersonas).Select(personaColumns...).
		Where(goqu.I("user_id").Eq(userID)).
		Order(goqu.I("created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list personas query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list personas for %q: %w", userID, err)
	}
	defer rows.Close()

	var result []models.Persona
	for rows.Next() {
		var p models.Persona
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.PreferredName, &p.Pronouns, &p.Description,
			&p.ShareLTMAcrossPersonalities, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan persona row: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) CreatePersona(ctx context.Context, p models.Persona) error {
	query, _, err := s.goqu.Insert(s.tablePersonas).Rows(goqu.Record{
		"id": p.ID, "user_id": p.UserID, "name": p.Name, "preferred_name": p.PreferredName,
		"pronouns": p.Pronouns, "description": p.Description,
		"share_ltm_across_personalities": p.ShareLTMAcrossPersonalities,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build create persona query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create persona %q: %w", p.ID, err)
	}
	return nil
}
