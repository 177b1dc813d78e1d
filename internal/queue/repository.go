package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrAlreadyQueued means the order already has a queue entry.
	ErrAlreadyQueued = errors.New("order already in queue")
)

type Repository interface {
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Entry, error)
	ActiveEntries(ctx context.Context, stallID uuid.UUID) ([]Entry, error)
	PendingCount(ctx context.Context, stallID uuid.UUID) (int, error)
	OrdersAhead(ctx context.Context, stallID uuid.UUID, position int) (int, error)
	BulkComplete(ctx context.Context, stallID uuid.UUID, orderIDs []uuid.UUID) (int, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const entryColumns = `id, order_id, stall_id, queue_position, status, estimated_wait_time,
	joined_at, ready_at, collected_at`

const activeStatuses = `'waiting', 'preparing', 'ready'`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.OrderID,
		&e.StallID,
		&e.QueuePosition,
		&e.Status,
		&e.EstimatedWaitTime,
		&e.JoinedAt,
		&e.ReadyAt,
		&e.CollectedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *postgresRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE order_id = $1`

	e, err := scanEntry(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("repository: failed to select queue entry for order %s: %w", orderID, err)
	}
	return e, nil
}

func (r *postgresRepository) ActiveEntries(ctx context.Context, stallID uuid.UUID) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE stall_id = $1 AND status IN (` + activeStatuses + `)
		ORDER BY queue_position
	`

	rows, err := r.db.Query(ctx, query, stallID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query queue for stall %s: %w", stallID, err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan queue entry: %w", err)
		}
		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating queue entries: %w", err)
	}

	return entries, nil
}

// PendingCount counts entries not yet ready. The live ready-time
// re-estimate is driven by this narrower set, unlike position assignment.
func (r *postgresRepository) PendingCount(ctx context.Context, stallID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM queue_entries
		WHERE stall_id = $1 AND status IN ('waiting', 'preparing')
	`

	var count int
	if err := r.db.QueryRow(ctx, query, stallID).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: failed to count pending entries for stall %s: %w", stallID, err)
	}
	return count, nil
}

func (r *postgresRepository) OrdersAhead(ctx context.Context, stallID uuid.UUID, position int) (int, error) {
	query := `
		SELECT COUNT(*) FROM queue_entries
		WHERE stall_id = $1 AND queue_position < $2 AND status IN (` + activeStatuses + `)
	`

	var count int
	if err := r.db.QueryRow(ctx, query, stallID, position).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: failed to count orders ahead for stall %s: %w", stallID, err)
	}
	return count, nil
}

// BulkComplete marks the given orders' entries collected and renumbers the
// stall's remaining active entries. Runs in one transaction under the
// stall lock so no join or advance interleaves.
func (r *postgresRepository) BulkComplete(ctx context.Context, stallID uuid.UUID, orderIDs []uuid.UUID) (completed int, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("stall_id", stallID).Msg("repository: failed to rollback bulk complete")
			}
		}
	}()

	if err = LockStallTx(ctx, tx, stallID); err != nil {
		return 0, err
	}

	updateQuery := `
		UPDATE queue_entries
		SET status = 'collected', collected_at = NOW()
		WHERE stall_id = $1 AND order_id = ANY($2) AND status IN (` + activeStatuses + `)
	`
	tag, err := tx.Exec(ctx, updateQuery, stallID, orderIDs)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to bulk complete entries for stall %s: %w", stallID, err)
	}
	completed = int(tag.RowsAffected())

	if err = RecompactTx(ctx, tx, stallID); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("repository: failed to commit bulk complete: %w", err)
	}
	return completed, nil
}

// LockStallTx takes the per-stall serialisation lock. Every write that
// assigns or renumbers queue positions must hold it for the duration of
// its transaction.
func LockStallTx(ctx context.Context, tx pgx.Tx, stallID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM stalls WHERE id = $1 FOR UPDATE`, stallID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("repository: stall %s not found for lock: %w", stallID, err)
		}
		return fmt.Errorf("repository: failed to lock stall %s: %w", stallID, err)
	}
	return nil
}

// ActiveCountTx counts active entries inside a transaction that already
// holds the stall lock.
func ActiveCountTx(ctx context.Context, tx pgx.Tx, stallID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM queue_entries
		WHERE stall_id = $1 AND status IN (` + activeStatuses + `)
	`

	var count int
	if err := tx.QueryRow(ctx, query, stallID).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: failed to count active entries for stall %s: %w", stallID, err)
	}
	return count, nil
}

// InsertTx adds a new entry within the caller's transaction.
func InsertTx(ctx context.Context, tx pgx.Tx, e *Entry) error {
	query := `
		INSERT INTO queue_entries (id, order_id, stall_id, queue_position, status, estimated_wait_time, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.Exec(ctx, query,
		e.ID,
		e.OrderID,
		e.StallID,
		e.QueuePosition,
		string(e.Status),
		e.EstimatedWaitTime,
		e.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert queue entry for order %s: %w", e.OrderID, err)
	}
	return nil
}

// UpdateStatusTx moves an order's entry to the given status, stamping
// ready_at / collected_at on the corresponding transitions.
func UpdateStatusTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status Status) error {
	query := `
		UPDATE queue_entries
		SET status = $1,
		    ready_at = CASE WHEN $1 = 'ready' THEN NOW() ELSE ready_at END,
		    collected_at = CASE WHEN $1 = 'collected' THEN NOW() ELSE collected_at END
		WHERE order_id = $2
	`
	tag, err := tx.Exec(ctx, query, string(status), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to update queue status for order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// RecompactTx renumbers a stall's active entries to a dense 1..N sequence,
// stable over (previous position, join time). Idempotent: a stall whose
// positions are already dense is left untouched.
func RecompactTx(ctx context.Context, tx pgx.Tx, stallID uuid.UUID) error {
	query := `
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY queue_position, joined_at) AS new_position
			FROM queue_entries
			WHERE stall_id = $1 AND status IN (` + activeStatuses + `)
		)
		UPDATE queue_entries q
		SET queue_position = r.new_position
		FROM ranked r
		WHERE q.id = r.id AND q.queue_position <> r.new_position
	`
	if _, err := tx.Exec(ctx, query, stallID); err != nil {
		return fmt.Errorf("repository: failed to recompact queue for stall %s: %w", stallID, err)
	}
	return nil
}
