// Package postgresql provides PostgreSQL persistence with row locking for performer checks.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/dukex/flowdesk/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:     database,
		logger: logger,
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// WithTx runs fn in a read committed transaction. Repositories take row locks where the
// callers rely on them.
func (p *Persistence) WithTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Rollback after a successful commit is a no-op returning sql.ErrTxDone.
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{tx: sqlTx}); err != nil {
		p.logger.DebugContext(ctx, "Rolling back transaction", "error", err)

		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) Users() persistence.UserRepository             { return &userRepository{tx: t.tx} }
func (t *tx) Groups() persistence.GroupRepository           { return &groupRepository{tx: t.tx} }
func (t *tx) Templates() persistence.TemplateRepository     { return &templateRepository{tx: t.tx} }
func (t *tx) Workflows() persistence.WorkflowRepository     { return &workflowRepository{tx: t.tx} }
func (t *tx) Tasks() persistence.TaskRepository             { return &taskRepository{tx: t.tx} }
func (t *tx) Performers() persistence.PerformerRepository   { return &performerRepository{tx: t.tx} }
func (t *tx) Events() persistence.EventRepository           { return &eventRepository{tx: t.tx} }
func (t *tx) Attachments() persistence.AttachmentRepository { return &attachmentRepository{tx: t.tx} }
