// Package eventbus provides per-session realtime pub/sub used to push
// status transitions and transcript updates to connected UI clients.
package eventbus

import (
	"encoding/json"
	"sync"
	"time"
)

// Topic classifies a realtime message.
type Topic string

const (
	// TopicStatus carries coarse session status transitions.
	TopicStatus Topic = "status"
	// TopicUpdate carries arbitrary structured payloads (transcript entries).
	TopicUpdate Topic = "update"
)

// Message is one realtime notification on a session channel.
type Message struct {
	SessionID string          `json:"session_id"`
	Topic     Topic           `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Bus is the realtime channel abstraction. Delivery is best-effort: slow
// subscribers may miss messages, and no cross-session ordering is defined.
type Bus interface {
	Subscribe(sessionID string) chan *Message
	Unsubscribe(sessionID string, ch chan *Message)
	Publish(sessionID string, msg *Message)
}

// InMemoryBus is a process-local Bus.
type InMemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]chan *Message
}

// NewInMemoryBus creates an empty in-memory bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subs: make(map[string][]chan *Message),
	}
}

// Subscribe creates a channel that receives messages for a session.
func (b *InMemoryBus) Subscribe(sessionID string) chan *Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Message, 64)
	b.subs[sessionID] = append(b.subs[sessionID], ch)
	return ch
}

// Unsubscribe removes a channel from the session's subscribers and closes it.
func (b *InMemoryBus) Unsubscribe(sessionID string, ch chan *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sessionID]
	for i, s := range subs {
		if s == ch {
			b.subs[sessionID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish sends a message to all subscribers for a session.
func (b *InMemoryBus) Publish(sessionID string, msg *Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[sessionID] {
		select {
		case ch <- msg:
		default:
			// Drop message if subscriber is too slow.
		}
	}
}

// NewStatusMessage builds a TopicStatus message from any JSON-encodable
// status payload.
func NewStatusMessage(sessionID string, payload any) (*Message, error) {
	return newMessage(sessionID, TopicStatus, payload)
}

// NewUpdateMessage builds a TopicUpdate message from any JSON-encodable
// payload.
func NewUpdateMessage(sessionID string, payload any) (*Message, error) {
	return newMessage(sessionID, TopicUpdate, payload)
}

func newMessage(sessionID string, topic Topic, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		SessionID: sessionID,
		Topic:     topic,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}
