package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/models"
)

// ErrJobResultNotFound is returned by ConfirmDelivery when no row exists
// for the job id, mapping to spec §6's "404 only if no row" rule.
var ErrJobResultNotFound = errors.New("postgres: job result not found")

func (s *Store) GetJobResult(ctx context.Context, jobID string) (*models.JobResult, error) {
	query, _, err := s.goqu.From(s.tableJobResults).
		Select("job_id", "payload", "delivery", "created_at", "updated_at").
		Where(goqu.I("job_id").Eq(jobID)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get job_result query: %w", err)
	}

	var r models.JobResult
	var payloadJSON []byte
	var delivery string
	err = s.db.QueryRowContext(ctx, query).Scan(&r.JobID, &payloadJSON, &delivery, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job_result %q: %w", jobID, err)
	}
	r.Delivery = models.DeliveryState(delivery)
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &r.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal job_result payload: %w", err)
		}
	}
	return &r, nil
}

// WritePendingDelivery records a freshly-completed generation, always
// starting at PENDING_DELIVERY. Re-running the same job id is a no-op
// (ON CONFLICT DO NOTHING) so a retried delivery stage can't regress an
// already-DELIVERED row back to pending.
func (s *Store) WritePendingDelivery(ctx context.Context, jobID, content string) error {
	payloadJSON, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal job_result payload: %w", err)
	}

	query, _, err := s.goqu.Insert(s.tableJobResults).Rows(goqu.Record{
		"job_id": jobID, "payload": payloadJSON, "delivery": string(models.DeliveryPending),
	}).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert job_result query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("write pending delivery for %q: %w", jobID, err)
	}
	return nil
}

// ConfirmDelivery transitions a result to DELIVERED. Confirming an
// already-DELIVERED result is a successful no-op per spec §9's codified
// open-question decision; only a missing row is an error.
func (s *Store) ConfirmDelivery(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	query, _, err := s.goqu.Update(s.tableJobResults).Set(goqu.Record{
		"delivery": string(models.DeliveryDelivered), "updated_at": now,
	}).Where(goqu.I("job_id").Eq(jobID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build confirm delivery query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("confirm delivery for %q: %w", jobID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrJobResultNotFound
	}
	return nil
}
