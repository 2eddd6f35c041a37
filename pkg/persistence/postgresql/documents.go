package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// column is an indexed value stored next to the document.
type column struct {
	name  string
	value any
}

func nextID(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	var id int64

	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT nextval('%s_id_seq')", table)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", table, err)
	}

	return id, nil
}

// upsert writes the document and its lookup columns.
func upsert(ctx context.Context, tx *sql.Tx, table string, id int64, doc any, columns ...column) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %d: %w", table, id, err)
	}

	names := []string{"id"}
	placeholders := []string{"$1"}
	updates := make([]string, 0, len(columns)+1)
	args := []any{id}

	for _, c := range columns {
		args = append(args, c.value)
		names = append(names, c.name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c.name, c.name))
	}

	args = append(args, data)
	names = append(names, "data")
	placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	updates = append(updates, "data = EXCLUDED.data")

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "),
	)

	_, err = tx.ExecContext(ctx, query, args...)

	return err
}

// one decodes the document of the single row returned by query. It reports false when
// no row matched.
func one[T any](ctx context.Context, tx *sql.Tx, query string, args ...any) (*T, bool, error) {
	var data []byte

	err := tx.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return &doc, true, nil
}

func many[T any](ctx context.Context, tx *sql.Tx, query string, args ...any) ([]*T, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer func() { _ = rows.Close() }()

	docs := make([]*T, 0)

	for rows.Next() {
		var data []byte

		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		var doc T
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}

		docs = append(docs, &doc)
	}

	return docs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
