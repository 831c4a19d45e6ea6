package notifier

import (
	model "bidding-core/internal/models"
	"bidding-core/utils"
	"context"
	"sync"
)

// DefaultBufferSize is the per-subscriber channel capacity
const DefaultBufferSize = 64

type topic struct {
	mu     sync.Mutex // serializes publishes so per-auction order holds
	subs   map[uint64]chan model.AuctionEvent
	nextID uint64
}

// Hub is the in-process Broker. Publishing never blocks: a subscriber whose
// buffer is full is dropped and its channel closed.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]*topic
	bufferSize int
	closed     bool
}

// NewHub creates a Hub with the given per-subscriber buffer size
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		topics:     make(map[string]*topic),
		bufferSize: bufferSize,
	}
}

// Publish delivers event to every current subscriber of its auction
func (h *Hub) Publish(_ context.Context, event model.AuctionEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}
	t, ok := h.topics[event.AuctionID]
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.subs {
		select {
		case ch <- event:
		default:
			delete(t.subs, id)
			close(ch)
			utils.Warn("notifier: dropped slow subscriber", map[string]any{
				"auction_id": event.AuctionID,
				"subscriber": id,
			})
		}
	}
	return nil
}

// Subscribe registers a subscriber for auctionID. The subscription ends when ctx
// is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, auctionID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	t, ok := h.topics[auctionID]
	if !ok {
		t = &topic{subs: make(map[uint64]chan model.AuctionEvent)}
		h.topics[auctionID] = t
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	ch := make(chan model.AuctionEvent, h.bufferSize)
	t.subs[id] = ch
	t.mu.Unlock()

	sub := newSubscription(auctionID, ch, func() { h.unsubscribe(auctionID, id) })
	sub.bindContext(ctx)
	return sub, nil
}

// SubscriberCount reports how many subscribers an auction currently has
func (h *Hub) SubscriberCount(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	t, ok := h.topics[auctionID]
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close ends every subscription and rejects further use
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for auctionID, t := range h.topics {
		t.mu.Lock()
		for id, ch := range t.subs {
			delete(t.subs, id)
			close(ch)
		}
		t.mu.Unlock()
		delete(h.topics, auctionID)
	}
	return nil
}

func (h *Hub) unsubscribe(auctionID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[auctionID]
	if !ok {
		return
	}
	t.mu.Lock()
	if ch, present := t.subs[id]; present {
		delete(t.subs, id)
		close(ch)
	}
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if empty {
		delete(h.topics, auctionID)
	}
}
