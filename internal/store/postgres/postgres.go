// Package postgres is the relational store of spec §3: users, personas,
// personalities, credentials, configs, denylist entries, activated
// channels, job results, and the pending-memory safety net. Grounded on
// the teacher pack's rakunlabs-at/internal/store/postgres package (goqu
// query builder over database/sql with the pgx stdlib driver, one file per
// entity, table-prefix convention, manual row scanning).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	ConnMaxLifetime = 15 * time.Minute
	MaxIdleConns    = 5
	MaxOpenConns    = 10

	DefaultTablePrefix = "conduit_"
)

// Store wraps a pooled database/sql handle and goqu query builder over the
// entities of spec §3.
type Store struct {
	db   *sql.DB
	goqu *goqu.Database

	tableUsers            exp.IdentifierExpression
	tablePersonas         exp.IdentifierExpression
	tablePersonalities    exp.IdentifierExpression
	tableCredentials      exp.IdentifierExpression
	tablePersonalityCfg   exp.IdentifierExpression
	tableLLMConfigs       exp.IdentifierExpression
	tableDenylist         exp.IdentifierExpression
	tableChannels         exp.IdentifierExpression
	tableJobResults       exp.IdentifierExpression
	tablePendingMemory    exp.IdentifierExpression
	tableTombstones       exp.IdentifierExpression
}

// New opens the pool, applies pending migrations, and returns a ready Store.
func New(ctx context.Context, datasource string, tablePrefix string) (*Store, error) {
	if datasource == "" {
		return nil, fmt.Errorf("postgres: datasource is required")
	}
	if tablePrefix == "" {
		tablePrefix = DefaultTablePrefix
	}

	if err := Migrate(datasource, tablePrefix+"schema_migrations"); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	db, err := sql.Open("pgx", datasource)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	db.SetConnMaxLifetime(ConnMaxLifetime)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetMaxOpenConns(MaxOpenConns)

	slog.Info("connected to store postgres")

	return &Store{
		db:                  db,
		goqu:                goqu.New("postgres", db),
		tableUsers:          goqu.T(tablePrefix + "users"),
		tablePersonas:       goqu.T(tablePrefix + "personas"),
		tablePersonalities:  goqu.T(tablePrefix + "personalities"),
		tableCredentials:    goqu.T(tablePrefix + "user_credentials"),
		tablePersonalityCfg: goqu.T(tablePrefix + "user_personality_configs"),
		tableLLMConfigs:     goqu.T(tablePrefix + "llm_configs"),
		tableDenylist:       goqu.T(tablePrefix + "denylist_entries"),
		tableChannels:       goqu.T(tablePrefix + "activated_channels"),
		tableJobResults:     goqu.T(tablePrefix + "job_results"),
		tablePendingMemory:  goqu.T(tablePrefix + "pending_memory"),
		tableTombstones:     goqu.T(tablePrefix + "conversation_history_tombstones"),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pooled handle for components (e.g. internal/cache's DB
// notification bridge) that need a raw connection rather than goqu.
func (s *Store) DB() *sql.DB {
	return s.db
}
