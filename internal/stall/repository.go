package stall

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrStallNotFound    = errors.New("stall not found")
	ErrMenuItemNotFound = errors.New("menu item not found")
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Stall, error)
	List(ctx context.Context) ([]Stall, error)
	MenuForStall(ctx context.Context, stallID uuid.UUID) ([]MenuItem, error)
	MenuItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]MenuItem, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const stallColumns = `id, owner_id, name, description, location, cuisine_type, is_open,
	avg_prep_time, max_concurrent_orders, rating, created_at, updated_at`

func scanStall(row pgx.Row) (*Stall, error) {
	var s Stall
	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.Name,
		&s.Description,
		&s.Location,
		&s.CuisineType,
		&s.IsOpen,
		&s.AvgPrepTime,
		&s.MaxConcurrentOrders,
		&s.Rating,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Stall, error) {
	query := `SELECT ` + stallColumns + ` FROM stalls WHERE id = $1`

	s, err := scanStall(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStallNotFound
		}
		return nil, fmt.Errorf("repository: failed to select stall by id %s: %w", id, err)
	}
	return s, nil
}

func (r *postgresRepository) List(ctx context.Context) ([]Stall, error) {
	query := `SELECT ` + stallColumns + ` FROM stalls ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query stalls: %w", err)
	}
	defer rows.Close()

	stalls := make([]Stall, 0)
	for rows.Next() {
		s, err := scanStall(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan stall: %w", err)
		}
		stalls = append(stalls, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating stalls: %w", err)
	}

	return stalls, nil
}

const menuItemColumns = `id, stall_id, name, description, price_cents, category,
	is_available, is_vegetarian, is_halal, preparation_time, created_at`

func scanMenuItem(row pgx.Row) (*MenuItem, error) {
	var m MenuItem
	err := row.Scan(
		&m.ID,
		&m.StallID,
		&m.Name,
		&m.Description,
		&m.PriceCents,
		&m.Category,
		&m.IsAvailable,
		&m.IsVegetarian,
		&m.IsHalal,
		&m.PrepTime,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *postgresRepository) MenuForStall(ctx context.Context, stallID uuid.UUID) ([]MenuItem, error) {
	query := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE stall_id = $1 ORDER BY category, name`

	rows, err := r.db.Query(ctx, query, stallID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query menu for stall %s: %w", stallID, err)
	}
	defer rows.Close()

	items := make([]MenuItem, 0)
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan menu item: %w", err)
		}
		items = append(items, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating menu items: %w", err)
	}

	return items, nil
}

func (r *postgresRepository) MenuItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]MenuItem, error) {
	query := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query menu items by ids: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID]MenuItem, len(ids))
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan menu item: %w", err)
		}
		items[m.ID] = *m
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating menu items: %w", err)
	}

	return items, nil
}
