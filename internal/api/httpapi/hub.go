package httpapi

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/ariavoice/audioplayer/internal/app/player"
)

// subscriberBuffer is the per-subscriber event backlog. Events beyond it are
// dropped for that subscriber until it drains.
const subscriberBuffer = 64

// Event is one outbound player message annotated with the hub sequence
// number.
type Event struct {
	SeqNo uint64
	Name  string
	Data  []byte
}

// subscription represents a subscriber's event channel.
type subscription struct {
	id string
	ch chan Event
}

// Hub fans outbound player messages out to event-stream subscribers. It
// implements player.MessageSender; messages arrive in the order the player
// emits them.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	closed        bool
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

var _ player.MessageSender = (*Hub)(nil)

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a subscriber and returns its ID and event channel. The
// channel is closed when the hub closes; on an already closed hub the
// returned channel is closed immediately.
func (h *Hub) Subscribe() (string, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return "", ch
	}

	id := uuid.New().String()
	h.subscriptions[id] = &subscription{id: id, ch: ch}
	return id, ch
}

// Unsubscribe removes a subscription. The channel is left open so a
// concurrent send cannot hit a closed channel.
func (h *Hub) Unsubscribe(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscriptions, subscriptionID)
}

// SendMessage broadcasts a message to all subscribers. Sends never block: a
// subscriber whose buffer is full misses the event.
func (h *Hub) SendMessage(msg player.Message) {
	h.sequenceNoMu.Lock()
	h.sequenceNo++
	ev := Event{SeqNo: h.sequenceNo, Name: msg.Name, Data: msg.JSON}
	h.sequenceNoMu.Unlock()

	// Sends happen under the read lock so Close cannot close a channel
	// mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subscriptions {
		select {
		case sub.ch <- ev:
		default:
			zlog.Warn().Msgf("event hub: subscriber buffer full, dropping event: subscription=%s event=%s", sub.id, msg.Name)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Close closes all subscriber channels and rejects future subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subscriptions {
		close(sub.ch)
	}
	h.subscriptions = make(map[string]*subscription)
}
