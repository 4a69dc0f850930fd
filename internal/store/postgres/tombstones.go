package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/models"
)

// RecordTombstone marks messageID as hard-deleted so any pending-memory
// staging that references it can be skipped by readers that check first.
func (s *Store) RecordTombstone(ctx context.Context, t models.ConversationHistoryTombstone) error {
	query, _, err := s.goqu.Insert(s.tableTombstones).Rows(goqu.Record{
		"message_id": t.MessageID,
	}).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		return fmt.Errorf("build record tombstone query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("record tombstone for %q: %w", t.MessageID, err)
	}
	return nil
}

func (s *Store) IsTombstoned(ctx context.Context, messageID string) (bool, error) {
	query, _, err := s.goqu.From(s.tableTombstones).
		Select(goqu.L("1")).
		Where(goqu.I("message_id").Eq(messageID)).
		Limit(1).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build tombstone lookup query: %w", err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx, query).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup tombstone %q: %w", messageID, err)
	}
	return true, nil
}
