// Package outbox is the asynchronous delivery queue for notifications
// and broadcasts. Sends are decoupled from the webhook request cycle so
// their lifetime is not bound to the deadline guard, and every item is
// accounted for individually.
package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"confessd/pkg/logger"
	"confessd/pkg/store"
	"confessd/pkg/tg"
)

var (
	ErrQueueFull   = errors.New("outbox queue full")
	ErrQueueClosed = errors.New("outbox queue closed")
)

// Sender delivers one message to one chat. *tg.Client satisfies it.
type Sender interface {
	SendMessage(chatID int64, text string, kb *tg.InlineKeyboardMarkup) (int, error)
}

// Item is one pending delivery.
type Item struct {
	ID      string
	ChatID  int64
	Text    string
	Kb      *tg.InlineKeyboardMarkup
	batchID string
}

// batch tracks per-item outcomes for a group of deliveries and invokes
// done exactly once when the last item settles.
type batch struct {
	total  int
	sent   int
	failed int
	done   func(sent, failed int)
}

// Queue is a bounded in-memory delivery queue with a rate-limited worker.
type Queue struct {
	ch      chan Item
	sender  Sender
	limiter *rate.Limiter
	closed  int32

	mu      sync.Mutex
	batches map[string]*batch
	dropped uint64
}

// New creates a Queue of the given capacity, capped at rps/burst sends.
func New(capacity int, rps float64, burst int, sender Sender) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	if rps <= 0 {
		rps = 25
	}
	if burst <= 0 {
		burst = 5
	}
	return &Queue{
		ch:      make(chan Item, capacity),
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		batches: make(map[string]*batch),
	}
}

// Start runs the delivery worker until ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx)
}

// Enqueue adds a single delivery without blocking.
func (q *Queue) Enqueue(it Item) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	select {
	case q.ch <- it:
		return nil
	default:
		atomic.AddUint64(&q.dropped, 1)
		store.OutboxFailed.Inc()
		return ErrQueueFull
	}
}

// EnqueueBatch stages one message to many recipients and registers a
// completion callback invoked with the final sent/failed tally. Items
// that do not fit the queue are counted failed immediately.
func (q *Queue) EnqueueBatch(chatIDs []int64, text string, done func(sent, failed int)) {
	if len(chatIDs) == 0 {
		if done != nil {
			done(0, 0)
		}
		return
	}
	id := uuid.NewString()
	b := &batch{total: len(chatIDs), done: done}
	q.mu.Lock()
	q.batches[id] = b
	q.mu.Unlock()

	for _, chatID := range chatIDs {
		it := Item{ID: uuid.NewString(), ChatID: chatID, Text: text, batchID: id}
		if err := q.Enqueue(it); err != nil {
			q.settle(id, false)
		}
	}
}

// Dropped reports how many items were rejected because the queue was full.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&q.closed, 1)
			logger.Info("outbox_worker_stopping")
			return
		case it := <-q.ch:
			if err := q.limiter.Wait(ctx); err != nil {
				atomic.StoreInt32(&q.closed, 1)
				return
			}
			q.deliver(it)
		}
	}
}

// deliver sends one item. Failures are swallowed, counted and logged;
// a blocked recipient is an expected outcome, not an error.
func (q *Queue) deliver(it Item) {
	_, err := q.sender.SendMessage(it.ChatID, it.Text, it.Kb)
	if err != nil {
		store.OutboxFailed.Inc()
		if errors.Is(err, tg.ErrBlocked) {
			logger.Debug("outbox_recipient_blocked", "item", it.ID, "chat", it.ChatID)
		} else {
			logger.Warn("outbox_send_failed", "item", it.ID, "chat", it.ChatID, "error", err)
		}
		q.settle(it.batchID, false)
		return
	}
	store.OutboxSent.Inc()
	q.settle(it.batchID, true)
}

// settle records one item outcome against its batch, firing the batch
// callback when the last item lands.
func (q *Queue) settle(batchID string, ok bool) {
	if batchID == "" {
		return
	}
	q.mu.Lock()
	b := q.batches[batchID]
	if b == nil {
		q.mu.Unlock()
		return
	}
	if ok {
		b.sent++
	} else {
		b.failed++
	}
	finished := b.sent+b.failed >= b.total
	if finished {
		delete(q.batches, batchID)
	}
	q.mu.Unlock()
	if finished && b.done != nil {
		b.done(b.sent, b.failed)
	}
}
