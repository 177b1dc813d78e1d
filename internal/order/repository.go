package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/canteenq/canteenq/internal/queue"
)

var ErrOrderNotFound = errors.New("order not found")

// StatusChange carries everything one transition writes: the new order
// status, an optional payment status, the mirrored queue status, and
// whether the queue entry leaves the active set (which forces a
// recompaction of the stall's positions).
type StatusChange struct {
	Status        Status
	PaymentStatus PaymentStatus // empty means unchanged
	QueueStatus   queue.Status
}

func (c StatusChange) leavesActive() bool {
	return !c.QueueStatus.Active()
}

type Repository interface {
	Create(ctx context.Context, o *Order, avgPrepTime int) (*queue.Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Summary, error)
	ListByStall(ctx context.Context, stallID uuid.UUID, status *Status) ([]Order, error)
	AdvanceStatus(ctx context.Context, o *Order, change StatusChange) error
	OwnerOf(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// Create inserts the order, its items and the queue entry in one
// transaction. The stall row lock serialises queue number and position
// assignment per stall, so concurrent creations cannot observe the same
// active count.
func (r *postgresRepository) Create(ctx context.Context, o *Order, avgPrepTime int) (entry *queue.Entry, err error) {
	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate order ID: %w", err)
	}
	o.ID = orderID

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback create order")
			}
		}
	}()

	if err = queue.LockStallTx(ctx, tx, o.StallID); err != nil {
		return nil, err
	}

	depth, err := queue.ActiveCountTx(ctx, tx, o.StallID)
	if err != nil {
		return nil, err
	}
	o.QueueNumber = depth + 1

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	var orderNo int64
	insertOrder := `
		INSERT INTO orders (id, user_id, stall_id, status, payment_status, payment_method,
			total_cents, queue_number, pickup_window_start, pickup_window_end,
			special_instructions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING order_no
	`
	err = tx.QueryRow(ctx, insertOrder,
		o.ID,
		o.UserID,
		o.StallID,
		string(o.Status),
		string(o.PaymentStatus),
		o.PaymentMethod,
		o.TotalCents,
		o.QueueNumber,
		o.PickupWindowStart,
		o.PickupWindowEnd,
		o.SpecialInstructions,
		o.CreatedAt,
		o.UpdatedAt,
	).Scan(&orderNo)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}

	// The human-readable number derives from the insert sequence, so it is
	// only known post-insert.
	o.OrderNumber = fmt.Sprintf("ORD%05d", orderNo)
	if _, err = tx.Exec(ctx, `UPDATE orders SET order_number = $1 WHERE id = $2`, o.OrderNumber, o.ID); err != nil {
		return nil, fmt.Errorf("repository: failed to set order number: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return nil, fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = o.ID

		insertItem := `
			INSERT INTO order_items (id, order_id, menu_item_id, quantity, unit_price_cents, special_requests)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err = tx.Exec(ctx, insertItem,
			item.ID,
			item.OrderID,
			item.MenuItemID,
			item.Quantity,
			item.UnitPriceCents,
			item.SpecialRequests,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	entryID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate queue entry ID: %w", err)
	}
	entry = &queue.Entry{
		ID:                entryID,
		OrderID:           o.ID,
		StallID:           o.StallID,
		QueuePosition:     depth + 1,
		Status:            queue.StatusWaiting,
		EstimatedWaitTime: queue.JoinEstimate(avgPrepTime, depth),
		JoinedAt:          now,
	}
	if err = queue.InsertTx(ctx, tx, entry); err != nil {
		if isUniqueViolation(err) {
			err = queue.ErrAlreadyQueued
		}
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit create order: %w", err)
	}
	return entry, nil
}

const orderColumns = `id, user_id, stall_id, status, payment_status, payment_method,
	total_cents, queue_number, COALESCE(order_number, ''), pickup_window_start, pickup_window_end,
	special_instructions, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.StallID,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentMethod,
		&o.TotalCents,
		&o.QueueNumber,
		&o.OrderNumber,
		&o.PickupWindowStart,
		&o.PickupWindowEnd,
		&o.SpecialInstructions,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	items, err := r.itemsForOrders(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	if o.Items == nil {
		o.Items = make([]OrderItem, 0)
	}

	return o, nil
}

func (r *postgresRepository) itemsForOrders(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]OrderItem, error) {
	query := `
		SELECT id, order_id, menu_item_id, quantity, unit_price_cents, special_requests
		FROM order_items
		WHERE order_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]OrderItem)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.MenuItemID,
			&item.Quantity,
			&item.UnitPriceCents,
			&item.SpecialRequests,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return items, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Summary, error) {
	query := `
		SELECT o.id, o.stall_id, s.name, o.status, o.payment_status, o.total_cents,
			o.queue_number, COALESCE(o.order_number, ''), o.pickup_window_start, o.pickup_window_end, o.created_at
		FROM orders o
		JOIN stalls s ON s.id = o.stall_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var s Summary
		err := rows.Scan(
			&s.ID,
			&s.StallID,
			&s.StallName,
			&s.Status,
			&s.PaymentStatus,
			&s.TotalCents,
			&s.QueueNumber,
			&s.OrderNumber,
			&s.PickupWindowStart,
			&s.PickupWindowEnd,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order summaries: %w", err)
	}

	return summaries, nil
}

func (r *postgresRepository) ListByStall(ctx context.Context, stallID uuid.UUID, status *Status) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE stall_id = $1`
	args := []interface{}{stallID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for stall %s: %w", stallID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	var orderIDs []uuid.UUID
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.Items = make([]OrderItem, 0)
		orders = append(orders, *o)
		orderIDs = append(orderIDs, o.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return orders, nil
	}

	items, err := r.itemsForOrders(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if got := items[orders[i].ID]; got != nil {
			orders[i].Items = got
		}
	}

	return orders, nil
}

// AdvanceStatus applies a validated transition to the order and its queue
// entry in one transaction, recompacting the stall's queue when the entry
// leaves the active set. The order write is conditional on the status the
// caller read, so a transition that raced ahead of this one makes the
// write fail instead of being overwritten.
func (r *postgresRepository) AdvanceStatus(ctx context.Context, o *Order, change StatusChange) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback status change")
			}
		}
	}()

	if change.leavesActive() {
		if err = queue.LockStallTx(ctx, tx, o.StallID); err != nil {
			return err
		}
	}

	var tag pgconn.CommandTag
	if change.PaymentStatus != "" {
		tag, err = tx.Exec(ctx,
			`UPDATE orders SET status = $1, payment_status = $2, updated_at = NOW() WHERE id = $3 AND status = $4`,
			string(change.Status), string(change.PaymentStatus), o.ID, string(o.Status))
	} else {
		tag, err = tx.Exec(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
			string(change.Status), o.ID, string(o.Status))
	}
	if err != nil {
		return fmt.Errorf("repository: failed to update order status for %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var current Status
		scanErr := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, o.ID).Scan(&current)
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("repository: failed to re-read order status for %s: %w", o.ID, scanErr)
		}
		return fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidTransition, current, change.Status)
	}

	if err = queue.UpdateStatusTx(ctx, tx, o.ID, change.QueueStatus); err != nil {
		return err
	}

	if change.leavesActive() {
		if err = queue.RecompactTx(ctx, tx, o.StallID); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit status change: %w", err)
	}
	return nil
}

func (r *postgresRepository) OwnerOf(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT user_id FROM orders WHERE id = $1`, orderID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrOrderNotFound
		}
		return uuid.Nil, fmt.Errorf("repository: failed to select order owner for %s: %w", orderID, err)
	}
	return userID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
