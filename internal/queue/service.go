package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/canteenq/canteenq/internal/auth"
	"github.com/canteenq/canteenq/internal/stall"
)

// OrderOwners resolves who may see or manage an order's queue entry.
// Implemented by the order repository.
type OrderOwners interface {
	OwnerOf(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error)
}

type Ledger interface {
	PositionOf(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*Position, error)
	StallQueue(ctx context.Context, stallID uuid.UUID) (*StallQueue, error)
	BulkComplete(ctx context.Context, ident auth.Identity, stallID uuid.UUID, orderIDs []uuid.UUID) (int, error)
}

type ledger struct {
	repo      Repository
	stallRepo stall.Repository
	owners    OrderOwners
}

func NewLedger(repo Repository, stallRepo stall.Repository, owners OrderOwners) Ledger {
	return &ledger{repo: repo, stallRepo: stallRepo, owners: owners}
}

func (l *ledger) PositionOf(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*Position, error) {
	entry, err := l.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("ledger: failed to fetch queue entry: %w", err)
	}

	if !ident.IsAdmin() {
		ownerID, err := l.owners.OwnerOf(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("ledger: failed to resolve order owner: %w", err)
		}
		if ownerID != ident.UserID {
			return nil, auth.ErrNotAllowed
		}
	}

	ahead, err := l.repo.OrdersAhead(ctx, entry.StallID, entry.QueuePosition)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to count orders ahead: %w", err)
	}

	// Every entry gets a wait estimate at join time, so a ready time is
	// always derivable. Zero is a valid estimate for an idle instant stall.
	ready := entry.JoinedAt.Add(time.Duration(entry.EstimatedWaitTime) * time.Minute)

	return &Position{
		QueueNumber:        entry.QueuePosition,
		Position:           ahead + 1,
		OrdersAhead:        ahead,
		Status:             entry.Status,
		JoinedAt:           entry.JoinedAt,
		EstimatedReadyTime: &ready,
	}, nil
}

func (l *ledger) StallQueue(ctx context.Context, stallID uuid.UUID) (*StallQueue, error) {
	st, err := l.stallRepo.GetByID(ctx, stallID)
	if err != nil {
		if errors.Is(err, stall.ErrStallNotFound) {
			return nil, stall.ErrStallNotFound
		}
		return nil, fmt.Errorf("ledger: failed to fetch stall: %w", err)
	}

	entries, err := l.repo.ActiveEntries(ctx, stallID)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to fetch stall queue: %w", err)
	}

	return &StallQueue{
		StallID:       stallID,
		Entries:       entries,
		ActiveCount:   len(entries),
		EstimatedWait: JoinEstimate(st.AvgPrepTime, len(entries)),
	}, nil
}

func (l *ledger) BulkComplete(ctx context.Context, ident auth.Identity, stallID uuid.UUID, orderIDs []uuid.UUID) (int, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}

	st, err := l.stallRepo.GetByID(ctx, stallID)
	if err != nil {
		if errors.Is(err, stall.ErrStallNotFound) {
			return 0, stall.ErrStallNotFound
		}
		return 0, fmt.Errorf("ledger: failed to fetch stall: %w", err)
	}
	if !ident.IsAdmin() && st.OwnerID != ident.UserID {
		return 0, auth.ErrNotAllowed
	}

	completed, err := l.repo.BulkComplete(ctx, stallID, orderIDs)
	if err != nil {
		return 0, fmt.Errorf("ledger: failed to bulk complete: %w", err)
	}

	log.Info().
		Stringer("stall_id", stallID).
		Int("completed", completed).
		Msg("ledger: bulk completed queue entries")
	return completed, nil
}
