// Package admission implements the position-slot admission queue (C8):
// a bounded, serialized FIFO with expiry sweep and a release callback
// invoked when a position closes and frees a slot.
package admission

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// Outcome is what Request returns.
type Outcome string

const (
	Allowed         Outcome = "Allowed"
	Queued          Outcome = "Queued"
	BlockedNoQueue  Outcome = "BlockedNoQueue"
)

// OpenPositionCounter reports the current number of open positions.
type OpenPositionCounter interface {
	OpenPositionCount(ctx context.Context) (int, error)
}

// ExecuteFunc is invoked with a popped signal's payload when a slot frees up.
type ExecuteFunc func(ctx context.Context, signal domain.ScoredSignal)

// Queue is C8. All operations are serialized by a single mutex, matching
// the spec's "queue operations are serialized" requirement.
type Queue struct {
	mu sync.Mutex

	positions   OpenPositionCounter
	store       ports.QueueStore
	events      ports.EventLog
	execute     ExecuteFunc
	maxPositions int
	enableQueue  bool
	maxQueueSize int
	expiry       time.Duration

	entries []domain.QueuedSignal
}

// New builds a Queue. SetExecuteCallback must be called before any
// position close can pop a slot.
func New(positions OpenPositionCounter, store ports.QueueStore, events ports.EventLog, maxPositions, maxQueueSize int, expiry time.Duration, enableQueue bool) *Queue {
	return &Queue{
		positions:    positions,
		store:        store,
		events:       events,
		maxPositions: maxPositions,
		enableQueue:  enableQueue,
		maxQueueSize: maxQueueSize,
		expiry:       expiry,
	}
}

// SetExecuteCallback registers the function invoked when a queued signal
// is popped after a slot frees up.
func (q *Queue) SetExecuteCallback(fn ExecuteFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.execute = fn
}

// Request implements `request(signal_id, payload)` (§4.8).
func (q *Queue) Request(ctx context.Context, signal domain.ScoredSignal) (Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count, err := q.positions.OpenPositionCount(ctx)
	if err != nil {
		return "", err
	}
	if count < q.maxPositions {
		return Allowed, nil
	}
	if !q.enableQueue {
		return BlockedNoQueue, nil
	}

	entry := domain.QueuedSignal{
		ID:            domain.NewID(),
		SignalID:      signal.SignalID,
		SignalPayload: signal,
		EnqueuedAt:    time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(q.expiry),
	}

	if len(q.entries) >= q.maxQueueSize {
		dropped := q.entries[0]
		q.entries = q.entries[1:]
		q.recordEvent(ctx, domain.SlotEventDropped, dropped.SignalID)
		if q.store != nil {
			_ = q.store.Dequeue(ctx, dropped.ID)
		}
	}

	q.entries = append(q.entries, entry)
	q.recordEvent(ctx, domain.SlotEventEnqueued, entry.SignalID)
	if q.store != nil {
		if err := q.store.Enqueue(ctx, entry); err != nil {
			log.Error().Err(err).Msg("admission: failed to persist queue entry")
		}
	}

	return Queued, nil
}

// OnPositionClosed implements on_position_closed(position_id): it sweeps
// expired entries, pops the head if one survives, and invokes the
// registered execute callback. The callback may itself be denied by a
// downstream component (e.g. C7); that outcome is not requeued.
func (q *Queue) OnPositionClosed(ctx context.Context, positionID string) {
	q.mu.Lock()
	q.sweepExpiredLocked(ctx)

	var popped *domain.QueuedSignal
	if len(q.entries) > 0 {
		entry := q.entries[0]
		q.entries = q.entries[1:]
		popped = &entry
	}
	execute := q.execute
	q.mu.Unlock()

	if popped == nil {
		return
	}

	q.recordEvent(ctx, domain.SlotEventPopped, popped.SignalID)
	if q.store != nil {
		_ = q.store.Dequeue(ctx, popped.ID)
	}
	if execute != nil {
		execute(ctx, popped.SignalPayload)
	}
}

// GetQueueStatus sweeps expired entries and returns the live FIFO contents.
func (q *Queue) GetQueueStatus(ctx context.Context) []domain.QueuedSignal {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sweepExpiredLocked(ctx)
	out := make([]domain.QueuedSignal, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) sweepExpiredLocked(ctx context.Context) {
	now := time.Now().UTC()
	live := q.entries[:0]
	for _, e := range q.entries {
		if e.Expired(now) {
			q.recordEvent(ctx, domain.SlotEventExpired, e.SignalID)
			if q.store != nil {
				_ = q.store.Dequeue(ctx, e.ID)
			}
			continue
		}
		live = append(live, e)
	}
	q.entries = live
}

func (q *Queue) recordEvent(ctx context.Context, kind domain.PositionSlotEventKind, signalID string) {
	if q.events == nil {
		return
	}
	if err := q.events.AppendPositionSlotEvent(ctx, domain.PositionSlotEvent{
		ID: domain.NewID(), Kind: kind, SignalID: signalID, At: time.Now().UTC(),
	}); err != nil {
		log.Error().Err(err).Msg("admission: failed to append position slot event")
	}
}
