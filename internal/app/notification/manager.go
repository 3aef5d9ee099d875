// Package notification provides the notification manager for per-tenant
// status messages.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

const (
	sendTimeout = 500 * time.Millisecond
	bufferSize  = 64
)

// Type distinguishes the stream greeting from tenant messages.
type Type string

const (
	TypeSubscribed Type = "subscribed"
	TypeMessage    Type = "message"
)

// Notification is a user-facing status message for one tenant.
type Notification struct {
	Type       Type      `json:"type"`
	SequenceNo uint64    `json:"sequenceNo"`
	TenantID   string    `json:"tenantId"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id       string
	tenantID string // empty receives every tenant
	stream   Stream
	ch       chan *Notification
}

// Manager fans notifications out to subscribers. Delivery is asynchronous and
// ordered per subscriber; Notify never blocks on a slow stream.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a subscription for tenantID (empty for all tenants) and
// returns the subscription ID.
func (m *Manager) Subscribe(tenantID string, stream Stream) string {
	sub := &subscription{
		id:       uuid.New().String(),
		tenantID: tenantID,
		stream:   stream,
		ch:       make(chan *Notification, bufferSize),
	}

	m.mu.Lock()
	m.subscriptions[sub.id] = sub
	m.mu.Unlock()

	go m.deliver(sub)
	return sub.id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subscriptions[subscriptionID]; ok {
		close(sub.ch)
		delete(m.subscriptions, subscriptionID)
	}
}

// Notify logs message and queues it for every subscriber of tenantID.
// Delivery failures are logged, never returned.
func (m *Manager) Notify(tenantID, message string) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	seq := m.sequenceNo
	m.sequenceNoMu.Unlock()

	n := &Notification{
		Type:       TypeMessage,
		SequenceNo: seq,
		TenantID:   tenantID,
		Message:    message,
		Time:       time.Now(),
	}
	zlog.Info().Msgf("notify: tenant=%s seq=%d message=%s", tenantID, seq, message)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		if sub.tenantID != "" && sub.tenantID != tenantID {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			zlog.Warn().Msgf("notify: subscriber buffer full, dropping: subscription=%s seq=%d", sub.id, seq)
		}
	}
}

// SequenceNo returns the sequence number of the latest notification.
func (m *Manager) SequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	return m.sequenceNo
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sub := range m.subscriptions {
		close(sub.ch)
		delete(m.subscriptions, id)
	}
}

// deliver sends queued notifications to one subscriber, each bounded by
// sendTimeout.
func (m *Manager) deliver(sub *subscription) {
	for n := range sub.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)

		done := make(chan error, 1)
		go func() {
			done <- sub.stream.Send(n)
		}()

		select {
		case err := <-done:
			if err != nil {
				zlog.Warn().Msgf("notify: send failed: subscription=%s err=%v", sub.id, err)
			}
		case <-ctx.Done():
			zlog.Warn().Msgf("notify: send timed out: subscription=%s seq=%d", sub.id, n.SequenceNo)
		}
		cancel()
	}
}
