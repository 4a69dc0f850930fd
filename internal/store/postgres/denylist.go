package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/models"
)

func (s *Store) ListDenylistEntries(ctx context.Context) ([]models.DenylistEntry, error) {
	query, _, err := s.goqu.From(s.tableDenylist).
		Select("id", "type", "discord_id", "scope", "scope_id", "reason", "added_by", "created_at").
		Order(goqu.I("created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list denylist query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list denylist entries: %w", err)
	}
	defer rows.Close()

	var result []models.DenylistEntry
	for rows.Next() {
		var e models.DenylistEntry
		var typ, scope string
		if err := rows.Scan(&e.ID, &typ, &e.DiscordID, &scope, &e.ScopeID, &e.Reason, &e.AddedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan denylist row: %w", err)
		}
		e.Type = models.DenylistType(typ)
		e.Scope = models.DenylistScope(scope)
		result = append(result, e)
	}
	return result, rows.Err()
}

// CreateDenylistEntry rejects invalid combinations before touching the
// database, per models.DenylistEntry.Validate's invariants.
func (s *Store) CreateDenylistEntry(ctx context.Context, e models.DenylistEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	query, _, err := s.goqu.Insert(s.tableDenylist).Rows(goqu.Record{
		"id": e.ID, "type": string(e.Type), "discord_id": e.DiscordID, "scope": string(e.Scope),
		"scope_id": e.ScopeID, "reason": e.Reason, "added_by": e.AddedBy,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build create denylist query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create denylist entry %q: %w", e.ID, err)
	}
	return nil
}

func (s *Store) DeleteDenylistEntry(ctx context.Context, id string) error {
	query, _, err := s.goqu.Delete(s.tableDenylist).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete denylist query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete denylist entry %q: %w", id, err)
	}
	return nil
}
