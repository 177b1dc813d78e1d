package queue_test

import (
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"

	"github.com/canteenq/canteenq/internal/queue"
)

// stallBoard is an in-memory stand-in for one stall's persisted queue.
// Joins, status moves and renumbering follow the same rules the SQL
// layer applies; the mutex plays the part of the stall row lock.
type stallBoard struct {
	mu          sync.Mutex
	avgPrepTime int
	clock       time.Time
	entries     []*queue.Entry
}

func newStallBoard(avgPrepTime int) *stallBoard {
	return &stallBoard{
		avgPrepTime: avgPrepTime,
		clock:       time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC),
	}
}

func (b *stallBoard) join() *queue.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	depth := len(b.activeLocked())
	b.clock = b.clock.Add(time.Second)
	e := &queue.Entry{
		ID:                uuid.Must(uuid.NewV4()),
		OrderID:           uuid.Must(uuid.NewV4()),
		QueuePosition:     depth + 1,
		Status:            queue.StatusWaiting,
		EstimatedWaitTime: queue.JoinEstimate(b.avgPrepTime, depth),
		JoinedAt:          b.clock,
	}
	b.entries = append(b.entries, e)
	return e
}

func (b *stallBoard) setStatus(orderID uuid.UUID, status queue.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if e.OrderID == orderID {
			e.Status = status
		}
	}
	if !status.Active() {
		b.recompactLocked()
	}
}

func (b *stallBoard) activeLocked() []*queue.Entry {
	active := make([]*queue.Entry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.Status.Active() {
			active = append(active, e)
		}
	}
	return active
}

// recompactLocked renumbers active entries to 1..N, stable over
// (previous position, join time), the same ordering the SQL window
// renumbering uses.
func (b *stallBoard) recompactLocked() {
	active := b.activeLocked()
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].QueuePosition != active[j].QueuePosition {
			return active[i].QueuePosition < active[j].QueuePosition
		}
		return active[i].JoinedAt.Before(active[j].JoinedAt)
	})
	for i, e := range active {
		e.QueuePosition = i + 1
	}
}

func (b *stallBoard) activePositions() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	positions := make([]int, 0)
	for _, e := range b.entries {
		if e.Status.Active() {
			positions = append(positions, e.QueuePosition)
		}
	}
	sort.Ints(positions)
	return positions
}

func requireDense(t *testing.T, b *stallBoard) {
	t.Helper()
	positions := b.activePositions()
	for i, p := range positions {
		require.Equalf(t, i+1, p, "active positions not dense: %v", positions)
	}
}

func TestQueuePositions_DenseAfterRandomDepartures(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	board := newStallBoard(12)

	var active []*queue.Entry
	for i := 0; i < 25; i++ {
		active = append(active, board.join())
	}
	requireDense(t, board)

	for step := 0; step < 200; step++ {
		if len(active) == 0 || rng.Intn(3) == 0 {
			active = append(active, board.join())
		} else {
			i := rng.Intn(len(active))
			leaving := active[i]
			active = append(active[:i], active[i+1:]...)
			if rng.Intn(2) == 0 {
				board.setStatus(leaving.OrderID, queue.StatusCollected)
			} else {
				board.setStatus(leaving.OrderID, queue.StatusCancelled)
			}
		}
		requireDense(t, board)
	}
}

func TestQueuePositions_RenumberAfterCancellation(t *testing.T) {
	board := newStallBoard(15)

	first := board.join()
	second := board.join()

	require.Equal(t, 1, first.QueuePosition)
	require.Equal(t, 15, first.EstimatedWaitTime)
	require.Equal(t, 2, second.QueuePosition)
	require.Equal(t, 18, second.EstimatedWaitTime)

	board.setStatus(first.OrderID, queue.StatusCancelled)

	require.Equal(t, 1, second.QueuePosition)
	// the join-time commitment does not move with the position
	require.Equal(t, 18, second.EstimatedWaitTime)
	requireDense(t, board)
}

func TestQueuePositions_ConcurrentJoinsDistinct(t *testing.T) {
	board := newStallBoard(10)

	const joiners = 32
	var wg sync.WaitGroup
	wg.Add(joiners)
	for i := 0; i < joiners; i++ {
		go func() {
			defer wg.Done()
			board.join()
		}()
	}
	wg.Wait()

	positions := board.activePositions()
	require.Len(t, positions, joiners)
	for i, p := range positions {
		require.Equalf(t, i+1, p, "duplicate or skipped position: %v", positions)
	}
}
