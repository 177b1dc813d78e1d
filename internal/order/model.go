package order

import (
	"time"

	"github.com/gofrs/uuid"

	"github.com/canteenq/canteenq/internal/queue"
)

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) String() string {
	return string(s)
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusPendingPayment: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusPreparing: true,
		StatusCancelled: true,
	},
	StatusPreparing: {
		StatusReady: true,
	},
	StatusReady: {
		StatusCompleted: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is in the closed transition
// table. Terminal states allow nothing, including self-transitions.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	return ok && next[to]
}

// queueStatusFor maps an order status to the queue entry status that must
// accompany it. Every status an order can move to has a mapping.
var queueStatusFor = map[Status]queue.Status{
	StatusConfirmed: queue.StatusWaiting,
	StatusPreparing: queue.StatusPreparing,
	StatusReady:     queue.StatusReady,
	StatusCompleted: queue.StatusCollected,
	StatusCancelled: queue.StatusCancelled,
}

type OrderItem struct {
	ID              uuid.UUID `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	MenuItemID      uuid.UUID `json:"menu_item_id"`
	Quantity        int       `json:"quantity"`
	UnitPriceCents  int64     `json:"unit_price_cents"`
	SpecialRequests string    `json:"special_requests,omitempty"`
}

type Order struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              uuid.UUID     `json:"user_id"`
	StallID             uuid.UUID     `json:"stall_id"`
	Items               []OrderItem   `json:"items"`
	TotalCents          int64         `json:"total_cents"`
	Status              Status        `json:"status"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	PaymentMethod       string        `json:"payment_method,omitempty"`
	QueueNumber         int           `json:"queue_number"`
	OrderNumber         string        `json:"order_number"`
	PickupWindowStart   time.Time     `json:"pickup_window_start"`
	PickupWindowEnd     time.Time     `json:"pickup_window_end"`
	SpecialInstructions string        `json:"special_instructions,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Summary is the list view of an order, carrying a live ready-time
// re-estimate while the order is still in flight.
type Summary struct {
	ID                 uuid.UUID     `json:"id"`
	StallID            uuid.UUID     `json:"stall_id"`
	StallName          string        `json:"stall_name"`
	Status             Status        `json:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	TotalCents         int64         `json:"total_cents"`
	QueueNumber        int           `json:"queue_number"`
	OrderNumber        string        `json:"order_number"`
	PickupWindowStart  time.Time     `json:"pickup_window_start"`
	PickupWindowEnd    time.Time     `json:"pickup_window_end"`
	CreatedAt          time.Time     `json:"created_at"`
	EstimatedReadyTime *time.Time    `json:"estimated_ready_time,omitempty"`
}
