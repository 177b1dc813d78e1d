package queue

import "time"

// Minutes amortised per order already in the queue, on top of the stall's
// own preparation time.
const perOrderDelayMinutes = 3

// DefaultReadyEstimate is used when the stall cannot be resolved.
const DefaultReadyEstimate = 15 * time.Minute

// JoinEstimate is the wait in minutes committed to a new queue entry at
// join time: the stall's baseline prep time plus a flat per-order delay
// for every entry ahead. It is stored once and never recomputed.
func JoinEstimate(avgPrepTime, queueDepth int) int {
	return avgPrepTime + queueDepth*perOrderDelayMinutes
}

// ReadyEstimate is the live re-estimate used when querying an in-flight
// order: baseline prep plus half the baseline again for every entry
// still being worked. Not the same heuristic as JoinEstimate: the join
// figure is fixed at insert, this one tracks current load.
func ReadyEstimate(now time.Time, avgPrepTime, activeCount int) time.Time {
	delay := avgPrepTime + activeCount*(avgPrepTime/2)
	return now.Add(time.Duration(delay) * time.Minute)
}

// FallbackReadyEstimate is the live estimate when the stall is missing.
func FallbackReadyEstimate(now time.Time) time.Time {
	return now.Add(DefaultReadyEstimate)
}
