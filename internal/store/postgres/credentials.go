package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/aceteam-ai/conduit/internal/crypto"
	"github.com/aceteam-ai/conduit/internal/models"
)

// GetCredential returns a user's credential for serviceTag/credType with
// its value decrypted. A nil key means encryption is disabled and the
// stored value is plaintext, matching internal/crypto.Decrypt's passthrough.
func (s *Store) GetCredential(ctx context.Context, userID, serviceTag string, credType models.CredentialType, key []byte) (*models.UserCredential, error) {
	query, _, err := s.goqu.From(s.tableCredentials).
		Select("id", "user_id", "service_tag", "type", "ciphertext", "expires_at", "created_at", "updated_at").
		Where(goqu.I("user_id").Eq(userID), goqu.I("service_tag").Eq(serviceTag), goqu.I("type").Eq(string(credType))).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get credential query: %w", err)
	}

	var c models.UserCredential
	var typ string
	err = s.db.QueryRowContext(ctx, query).Scan(&c.ID, &c.UserID, &c.ServiceTag, &typ, &c.Ciphertext,
		&c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for %q/%q: %w", userID, serviceTag, err)
	}
	c.Type = models.CredentialType(typ)

	plaintext, err := crypto.Decrypt(c.Ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %q: %w", c.ID, err)
	}
	c.Ciphertext = plaintext
	return &c, nil
}

// UpsertCredential encrypts plaintext (if key is non-nil) before storing.
// Plaintext values are never logged by any caller in this store.
func (s *Store) UpsertCredential(ctx context.Context, c models.UserCredential, plaintext string, key []byte) error {
	ciphertext, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	query, _, err := s.goqu.Insert(s.tableCredentials).Rows(goqu.Record{
		"id": c.ID, "user_id": c.UserID, "service_tag": c.ServiceTag, "type": string(c.Type),
		"ciphertext": ciphertext, "expires_at": c.ExpiresAt,
	}).OnConflict(goqu.DoUpdate("user_id, service_tag, type", goqu.Record{
		"ciphertext": ciphertext,
		"expires_at": c.ExpiresAt,
	})).ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert credential query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("upsert credential %q: %w", c.ID, err)
	}
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, userID, serviceTag string, credType models.CredentialType) error {
	query, _, err := s.goqu.Delete(s.tableCredentials).
		Where(goqu.I("user_id").Eq(userID), goqu.I("service_tag").Eq(serviceTag), goqu.I("type").Eq(string(credType))).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete credential query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete credential for %q/%q: %w", userID, serviceTag, err)
	}
	return nil
}
