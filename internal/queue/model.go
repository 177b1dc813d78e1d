package queue

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCollected Status = "collected"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// Active reports whether an entry still occupies a queue position.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusPreparing || s == StatusReady
}

// Entry tracks one order's place in a stall's fulfilment pipeline. Its
// status mirrors the order's business status under a fixed mapping; its
// position is dense (1..N, no gaps) within the stall's active set.
type Entry struct {
	ID                uuid.UUID  `json:"id"`
	OrderID           uuid.UUID  `json:"order_id"`
	StallID           uuid.UUID  `json:"stall_id"`
	QueuePosition     int        `json:"queue_position"`
	Status            Status     `json:"status"`
	EstimatedWaitTime int        `json:"estimated_wait_time"` // minutes, fixed at join time
	JoinedAt          time.Time  `json:"joined_at"`
	ReadyAt           *time.Time `json:"ready_at,omitempty"`
	CollectedAt       *time.Time `json:"collected_at,omitempty"`
}

// Position is the live view returned for a single order.
type Position struct {
	QueueNumber        int        `json:"queue_number"`
	Position           int        `json:"position"`
	OrdersAhead        int        `json:"orders_ahead"`
	Status             Status     `json:"status"`
	JoinedAt           time.Time  `json:"joined_at"`
	EstimatedReadyTime *time.Time `json:"estimated_ready_time,omitempty"`
}

// StallQueue is the owner-facing view of a stall's active entries.
type StallQueue struct {
	StallID       uuid.UUID `json:"stall_id"`
	Entries       []Entry   `json:"entries"`
	ActiveCount   int       `json:"active_count"`
	EstimatedWait int       `json:"estimated_wait"` // minutes for a hypothetical new joiner
}
