package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skyhangar/flightline/model"
)

// PgStateStore is a PostgreSQL-backed StateStore using pgx/v5. Work item
// state lives in work_items; the history lives in transition_records and is
// written in the same transaction as the version-checked state update, so a
// compare-and-swap either lands both or neither.
type PgStateStore struct {
	pool *pgxpool.Pool
}

// NewPgStateStore creates a new PostgreSQL state store.
func NewPgStateStore(pool *pgxpool.Pool) *PgStateStore {
	return &PgStateStore{pool: pool}
}

// HealthCheck verifies database connectivity. Used by the readiness probe.
func (s *PgStateStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Create inserts a new work item with an empty history.
func (s *PgStateStore) Create(ctx context.Context, item model.WorkItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO work_items (
			id, title, description, template_id, priority, created_by,
			current_step, status, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		)`,
		item.ID, item.Title, item.Description, item.TemplateID, item.Priority, item.CreatedBy,
		item.State.CurrentStep, item.State.Status, item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert work item: %w", err)
	}
	return nil
}

// Load retrieves a work item and its ordered transition history.
func (s *PgStateStore) Load(ctx context.Context, itemID string) (model.WorkItem, error) {
	var item model.WorkItem

	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, template_id, priority, created_by,
		       current_step, status, version, created_at, updated_at
		FROM work_items
		WHERE id = $1`,
		itemID,
	).Scan(
		&item.ID, &item.Title, &item.Description, &item.TemplateID, &item.Priority, &item.CreatedBy,
		&item.State.CurrentStep, &item.State.Status, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.WorkItem{}, model.NewNotFoundError(fmt.Sprintf("work item %q not found", itemID))
	}
	if err != nil {
		return model.WorkItem{}, fmt.Errorf("query work item: %w", err)
	}

	history, err := s.loadHistory(ctx, itemID)
	if err != nil {
		return model.WorkItem{}, err
	}
	item.State.History = history

	return item, nil
}

// CompareAndSwap updates the state fields conditioned on the version and
// inserts the newly appended history record, atomically.
func (s *PgStateStore) CompareAndSwap(ctx context.Context, item model.WorkItem) error {
	record := item.State.LastRecord()
	if record == nil {
		return model.NewBadRequestError("compare-and-swap requires an appended history record")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE work_items SET
			current_step = $1,
			status = $2,
			version = $3,
			updated_at = $4
		WHERE id = $5 AND version = $6`,
		item.State.CurrentStep, item.State.Status, item.Version+1,
		item.UpdatedAt,
		item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf(
			"work item %q version conflict (expected %d)", item.ID, item.Version,
		))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transition_records (
			id, work_item_id, action, from_step, to_step, comment, actor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, item.ID, record.Action, record.FromStep, record.ToStep,
		record.Comment, record.Actor, record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert transition record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// List returns work items matching the filters, newest first. Histories are
// not loaded for list views.
func (s *PgStateStore) List(ctx context.Context, filters model.WorkItemFilters) ([]model.WorkItem, error) {
	query := `SELECT id, title, description, template_id, priority, created_by,
	                 current_step, status, version, created_at, updated_at
	          FROM work_items
	          WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.TemplateID != "" {
		query += fmt.Sprintf(" AND template_id = $%d", argIdx)
		args = append(args, filters.TemplateID)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query work items: %w", err)
	}
	defer rows.Close()

	var items []model.WorkItem
	for rows.Next() {
		var item model.WorkItem
		if err := rows.Scan(
			&item.ID, &item.Title, &item.Description, &item.TemplateID, &item.Priority, &item.CreatedBy,
			&item.State.CurrentStep, &item.State.Status, &item.Version, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// loadHistory retrieves the ordered transition records for a work item.
func (s *PgStateStore) loadHistory(ctx context.Context, itemID string) ([]model.TransitionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, action, from_step, to_step, comment, actor, created_at
		FROM transition_records
		WHERE work_item_id = $1
		ORDER BY created_at ASC, id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transition records: %w", err)
	}
	defer rows.Close()

	history := []model.TransitionRecord{}
	for rows.Next() {
		var r model.TransitionRecord
		if err := rows.Scan(
			&r.ID, &r.Action, &r.FromStep, &r.ToStep, &r.Comment, &r.Actor, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan transition record: %w", err)
		}
		history = append(history, r)
	}
	return history, rows.Err()
}
