package mtproto

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ex-tgbot/pkg/tgbot"

	"github.com/gotd/td/tg"
)

// updateQueue receives pushed MTProto updates and serves them to the poll loop
// through the pull-style FetchUpdates contract.
//
// MTProto has no update_id, so every accepted update gets a local, strictly
// increasing id starting at 1. The ids restart with the process.
type updateQueue struct {
	capacity int
	peers    *PeerCache
	logger   *slog.Logger

	mu      sync.Mutex
	nextID  int64
	pending []tgbot.Update
	dropped int
	notify  chan struct{}
}

func newUpdateQueue(capacity int, peers *PeerCache, logger *slog.Logger) *updateQueue {
	if capacity <= 0 {
		capacity = defaultUpdateBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &updateQueue{
		capacity: capacity,
		peers:    peers,
		logger:   logger,
		nextID:   1,
		notify:   make(chan struct{}, 1),
	}
}

// Handle implements the gotd update handler.
func (q *updateQueue) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	batch, err := flattenUpdates(updates)
	if err != nil {
		q.logger.WarnContext(ctx, "skip telegram updates", "error", err)
		return nil
	}

	for _, envelope := range batch {
		if q.peers != nil {
			q.peers.RememberEnvelope(envelope)
		}
		update, accepted := mapUpdate(envelope)
		if !accepted {
			continue
		}
		q.push(ctx, update)
	}

	return nil
}

func (q *updateQueue) push(ctx context.Context, update tgbot.Update) {
	q.mu.Lock()
	update.ID = q.nextID
	q.nextID++
	q.pending = append(q.pending, update)
	overflow := len(q.pending) - q.capacity
	if overflow > 0 {
		q.pending = append([]tgbot.Update(nil), q.pending[overflow:]...)
		q.dropped += overflow
	}
	droppedTotal := q.dropped
	q.mu.Unlock()

	if overflow > 0 {
		q.logger.WarnContext(ctx, "telegram update buffer full, dropped oldest updates",
			"dropped", overflow,
			"dropped_total", droppedTotal,
		)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// fetch returns pending updates with id >= request.Offset, waiting up to
// request.Timeout for the first one. Updates below the offset, and updates of
// types the request does not allow, are released.
func (q *updateQueue) fetch(ctx context.Context, request tgbot.FetchRequest) ([]tgbot.Update, error) {
	var timeout <-chan time.Time
	if request.Timeout > 0 {
		timer := time.NewTimer(request.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		if batch := q.take(request.Offset, request.Limit, request.AllowedUpdates); len(batch) > 0 {
			return batch, nil
		}
		if request.Timeout <= 0 {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch telegram updates: %w", ctx.Err())
		case <-timeout:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *updateQueue) take(offset int64, limit int, allowed []string) []tgbot.Update {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.pending[:0]
	for _, update := range q.pending {
		if update.ID < offset || !allowedType(update.Type, allowed) {
			continue
		}
		kept = append(kept, update)
	}
	clear(q.pending[len(kept):])
	q.pending = kept

	if limit <= 0 || limit > len(q.pending) {
		limit = len(q.pending)
	}

	return append([]tgbot.Update(nil), q.pending[:limit]...)
}

func allowedType(updateType tgbot.UpdateType, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, name := range allowed {
		if name == string(updateType) {
			return true
		}
	}

	return false
}
