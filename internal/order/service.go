package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/canteenq/canteenq/internal/auth"
	"github.com/canteenq/canteenq/internal/queue"
	"github.com/canteenq/canteenq/internal/stall"
)

var (
	// ErrValidation wraps all request-content failures; the message names
	// the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition wraps any status move outside the transition
	// table; the message carries the current and requested statuses.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

const (
	maxQuantityPerItem = 10
	maxLineItems       = 20
)

type LineItem struct {
	MenuItemID      uuid.UUID
	Quantity        int
	SpecialRequests string
}

type CreateOrderInput struct {
	StallID             uuid.UUID
	Items               []LineItem
	PickupWindowStart   time.Time
	PickupWindowEnd     time.Time
	PaymentMethod       string
	SpecialInstructions string
}

type Service interface {
	CreateOrder(ctx context.Context, ident auth.Identity, input CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, ident auth.Identity, id uuid.UUID) (*Order, error)
	ListOrdersForUser(ctx context.Context, ident auth.Identity) ([]Summary, error)
	ListOrdersForStall(ctx context.Context, ident auth.Identity, stallID uuid.UUID, status *Status) ([]Order, error)
	ConfirmPayment(ctx context.Context, ident auth.Identity, orderID uuid.UUID, paymentConfirmed bool) (*Order, error)
	StartPreparing(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*Order, error)
	MarkReady(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*Order, error)
	MarkCompleted(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*Order, error)
	CancelOrder(ctx context.Context, ident auth.Identity, orderID uuid.UUID) error
}

type service struct {
	repo      Repository
	stallRepo stall.Repository
	queueRepo queue.Repository
}

func NewService(repo Repository, stallRepo stall.Repository, queueRepo queue.Repository) Service {
	return &service{repo: repo, stallRepo: stallRepo, queueRepo: queueRepo}
}

func (s *service) CreateOrder(ctx context.Context, ident auth.Identity, input CreateOrderInput) (*Order, error) {
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	if len(input.Items) > maxLineItems {
		return nil, fmt.Errorf("%w: order cannot contain more than %d items", ErrValidation, maxLineItems)
	}

	st, err := s.stallRepo.GetByID(ctx, input.StallID)
	if err != nil {
		if errors.Is(err, stall.ErrStallNotFound) {
			return nil, stall.ErrStallNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch stall: %w", err)
	}
	if !st.IsOpen {
		return nil, fmt.Errorf("%w: stall is currently closed", ErrValidation)
	}

	now := time.Now().UTC()
	if !input.PickupWindowStart.After(now) {
		return nil, fmt.Errorf("%w: pickup_window_start must be in the future", ErrValidation)
	}
	if !input.PickupWindowStart.Before(input.PickupWindowEnd) {
		return nil, fmt.Errorf("%w: pickup_window_start must be before pickup_window_end", ErrValidation)
	}

	menuIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, li := range input.Items {
		menuIDs = append(menuIDs, li.MenuItemID)
	}
	menu, err := s.stallRepo.MenuItemsByIDs(ctx, menuIDs)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch menu items: %w", err)
	}

	var totalCents int64
	items := make([]OrderItem, 0, len(input.Items))
	for _, li := range input.Items {
		mi, ok := menu[li.MenuItemID]
		if !ok {
			return nil, fmt.Errorf("%w: menu item %s", stall.ErrMenuItemNotFound, li.MenuItemID)
		}
		if mi.StallID != input.StallID {
			return nil, fmt.Errorf("%w: menu item %s is not from this stall", ErrValidation, mi.Name)
		}
		if !mi.IsAvailable {
			return nil, fmt.Errorf("%w: %s is not available", ErrValidation, mi.Name)
		}
		if li.Quantity < 1 || li.Quantity > maxQuantityPerItem {
			return nil, fmt.Errorf("%w: quantity for %s must be between 1 and %d", ErrValidation, mi.Name, maxQuantityPerItem)
		}

		totalCents += mi.PriceCents * int64(li.Quantity)
		items = append(items, OrderItem{
			MenuItemID:      li.MenuItemID,
			Quantity:        li.Quantity,
			UnitPriceCents:  mi.PriceCents,
			SpecialRequests: li.SpecialRequests,
		})
	}

	o := &Order{
		UserID:              ident.UserID,
		StallID:             input.StallID,
		Items:               items,
		TotalCents:          totalCents,
		Status:              StatusPendingPayment,
		PaymentStatus:       PaymentPending,
		PaymentMethod:       input.PaymentMethod,
		PickupWindowStart:   input.PickupWindowStart,
		PickupWindowEnd:     input.PickupWindowEnd,
		SpecialInstructions: input.SpecialInstructions,
	}

	if _, err := s.repo.Create(ctx, o, st.AvgPrepTime); err != nil {
		log.Error().Err(err).Stringer("stall_id", input.StallID).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("stall_id", o.StallID).
		Int("queue_number", o.QueueNumber).
		Msg("service: order created")
	return o, nil
}

func (s *service) GetOrder(ctx context.Context, ident auth.Identity, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}

	if !ident.IsAdmin() && o.UserID != ident.UserID {
		st, err := s.stallRepo.GetByID(ctx, o.StallID)
		if err != nil || st.OwnerID != ident.UserID {
			return nil, auth.ErrNotAllowed
		}
	}

	return o, nil
}

func (s *service) ListOrdersForUser(ctx context.Context, ident auth.Identity) ([]Summary, error) {
	summaries, err := s.repo.ListByUser(ctx, ident.UserID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	now := time.Now().UTC()
	prepTimes := make(map[uuid.UUID]int)
	for i := range summaries {
		sm := &summaries[i]
		if sm.Status != StatusPendingPayment && sm.Status != StatusConfirmed && sm.Status != StatusPreparing {
			continue
		}

		avgPrep, ok := prepTimes[sm.StallID]
		if !ok {
			st, err := s.stallRepo.GetByID(ctx, sm.StallID)
			if err != nil {
				t := queue.FallbackReadyEstimate(now)
				sm.EstimatedReadyTime = &t
				continue
			}
			avgPrep = st.AvgPrepTime
			prepTimes[sm.StallID] = avgPrep
		}

		pending, err := s.queueRepo.PendingCount(ctx, sm.StallID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to count pending entries: %w", err)
		}
		t := queue.ReadyEstimate(now, avgPrep, pending)
		sm.EstimatedReadyTime = &t
	}

	return summaries, nil
}

func (s *service) ListOrdersForStall(ctx context.Context, ident auth.Identity, stallID uuid.UUID, status *Status) ([]Order, error) {
	st, err := s.stallRepo.GetByID(ctx, stallID)
	if err != nil {
		if errors.Is(err, stall.ErrStallNotFound) {
			return nil, stall.ErrStallNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch stall: %w", err)
	}
	if !ident.IsAdmin() && st.OwnerID != ident.UserID {
		return nil, auth.ErrNotAllowed
	}

	if status != nil {
		if _, ok := allowedTransitions[*status]; !ok {
			return nil, fmt.Errorf("%w: invalid status value %q", ErrValidation, *status)
		}
	}

	orders, err := s.repo.ListByStall(ctx, stallID, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch stall orders: %w", err)
	}
	return orders, nil
}

// ConfirmPayment settles the payment outcome for an order still awaiting
// it. Orders in any other state reject the call, including a repeat
// confirmation.
func (s *service) ConfirmPayment(ctx context.Context, ident auth.Identity, orderID uuid.UUID, paymentConfirmed bool) (*Order, error) {
	o, err := s.getAsOwner(ctx, ident, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPendingPayment {
		return nil, fmt.Errorf("%w: payment can only be settled while an order is %s, not %s",
			ErrInvalidTransition, StatusPendingPayment, o.Status)
	}

	if paymentConfirmed {
		return s.apply(ctx, o, StatusConfirmed, PaymentConfirmed)
	}
	return s.apply(ctx, o, StatusCancelled, PaymentFailed)
}

func (s *service) StartPreparing(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*Order, error) {
	return s.advanceAsOwner(ctx, ident, orderID, StatusPreparing, "")
}

func (s *service) MarkReady(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*Order, error) {
	return s.advanceAsOwner(ctx, ident, orderID, StatusReady, "")
}

func (s *service) MarkCompleted(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*Order, error) {
	return s.advanceAsOwner(ctx, ident, orderID, StatusCompleted, "")
}

// CancelOrder is the student-initiated cancellation path. The transition
// table only admits it from pending_payment or confirmed.
func (s *service) CancelOrder(ctx context.Context, ident auth.Identity, orderID uuid.UUID) error {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to fetch order: %w", err)
	}

	if !ident.IsAdmin() && o.UserID != ident.UserID {
		return auth.ErrNotAllowed
	}

	_, err = s.apply(ctx, o, StatusCancelled, PaymentFailed)
	return err
}

// advanceAsOwner performs a stall-owner/admin transition after the
// authorization check.
func (s *service) advanceAsOwner(ctx context.Context, ident auth.Identity, orderID uuid.UUID, to Status, payment PaymentStatus) (*Order, error) {
	o, err := s.getAsOwner(ctx, ident, orderID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, o, to, payment)
}

// getAsOwner fetches an order on behalf of the responsible stall owner or
// an admin.
func (s *service) getAsOwner(ctx context.Context, ident auth.Identity, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}

	if !ident.IsAdmin() {
		st, err := s.stallRepo.GetByID(ctx, o.StallID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to fetch stall: %w", err)
		}
		if st.OwnerID != ident.UserID {
			return nil, auth.ErrNotAllowed
		}
	}
	return o, nil
}

// apply validates the transition against the table and writes the order
// and queue changes atomically.
func (s *service) apply(ctx context.Context, o *Order, to Status, payment PaymentStatus) (*Order, error) {
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidTransition, o.Status, to)
	}

	change := StatusChange{
		Status:        to,
		PaymentStatus: payment,
		QueueStatus:   queueStatusFor[to],
	}
	if err := s.repo.AdvanceStatus(ctx, o, change); err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrInvalidTransition) || errors.Is(err, queue.ErrEntryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to advance order status: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Str("old_status", o.Status.String()).
		Str("new_status", to.String()).
		Msg("service: order status updated")

	o.Status = to
	if payment != "" {
		o.PaymentStatus = payment
	}
	o.UpdatedAt = time.Now().UTC()
	return o, nil
}
