package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shareguard/shareguard/internal/logger"
)

const (
	// DefaultQueueSize bounds the internal delivery queue.
	DefaultQueueSize = 256

	// DefaultSendTimeout is the per-subscription send deadline. A
	// subscription exceeding it is disconnected.
	DefaultSendTimeout = 5 * time.Second
)

// ErrServiceStopped is returned by Publish after Stop.
var ErrServiceStopped = errors.New("notify: service stopped")

// Transport delivers envelopes to one connected client.
type Transport interface {
	Send(ctx context.Context, env *Envelope) error
	Close() error
}

// Subscription is one connected client with its filter state.
type Subscription struct {
	ID     string
	UserID string

	transport Transport

	mu      sync.RWMutex
	filters Filters
}

// Filters returns a copy of the subscription's current filters.
func (s *Subscription) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// UpdateFilters replaces the subscription's filters.
func (s *Subscription) UpdateFilters(f Filters) {
	s.mu.Lock()
	s.filters = f
	s.mu.Unlock()
}

func (s *Subscription) matches(env *Envelope) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters.Match(env)
}

// queued is one unit of work for the processor.
type queued struct {
	env *Envelope
	// target restricts delivery to one subscription id; empty broadcasts.
	target string
}

// Service owns the subscription registry and the delivery queue.
type Service struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	byUser map[string][]string

	queue       chan queued
	stop        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	sendTimeout time.Duration
}

// Config tunes the service.
type Config struct {
	QueueSize   int
	SendTimeout time.Duration
}

// NewService builds and starts the queue processor.
func NewService(cfg Config) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}

	s := &Service{
		subs:        make(map[string]*Subscription),
		byUser:      make(map[string][]string),
		queue:       make(chan queued, cfg.QueueSize),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		sendTimeout: cfg.SendTimeout,
	}
	go s.process()
	return s
}

// Connect registers a transport and acknowledges with a
// connection_established envelope on the queue.
func (s *Service) Connect(transport Transport, userID string, filters Filters) (*Subscription, error) {
	select {
	case <-s.stop:
		return nil, ErrServiceStopped
	default:
	}

	sub := &Subscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		transport: transport,
		filters:   filters,
	}

	s.mu.Lock()
	s.subs[sub.ID] = sub
	if userID != "" {
		s.byUser[userID] = append(s.byUser[userID], sub.ID)
	}
	s.mu.Unlock()

	ack := NewEnvelope(TypeConnectionEstablished, "Connected",
		"Notification stream established", "", map[string]any{
			"subscription_id": sub.ID,
		})
	s.enqueue(queued{env: ack, target: sub.ID})

	logger.Info("subscription connected",
		logger.SubscriptionID(sub.ID), logger.KeyUserID, userID)
	return sub, nil
}

// Disconnect unregisters and closes a subscription. Unknown ids are a
// no-op.
func (s *Service) Disconnect(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
		if sub.UserID != "" {
			ids := s.byUser[sub.UserID]
			for i, candidate := range ids {
				if candidate == id {
					s.byUser[sub.UserID] = append(ids[:i], ids[i+1:]...)
					break
				}
			}
			if len(s.byUser[sub.UserID]) == 0 {
				delete(s.byUser, sub.UserID)
			}
		}
	}
	s.mu.Unlock()

	if ok {
		_ = sub.transport.Close()
		logger.Debug("subscription disconnected", logger.SubscriptionID(id))
	}
}

// Get returns a subscription by id.
func (s *Service) Get(id string) (*Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub, ok
}

// ConnectionCount reports the number of live subscriptions.
func (s *Service) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// QueueDepth reports the number of messages awaiting delivery.
func (s *Service) QueueDepth() int {
	return len(s.queue)
}

// Publish broadcasts an envelope to every matching subscription.
func (s *Service) Publish(env *Envelope) {
	s.enqueue(queued{env: env})
}

// SendTo queues an envelope for exactly one subscription, bypassing
// filters.
func (s *Service) SendTo(subscriptionID string, env *Envelope) {
	s.enqueue(queued{env: env, target: subscriptionID})
}

// SendToUser queues an envelope for every subscription of one user.
func (s *Service) SendToUser(userID string, env *Envelope) {
	s.mu.RLock()
	ids := append([]string{}, s.byUser[userID]...)
	s.mu.RUnlock()

	for _, id := range ids {
		s.enqueue(queued{env: env, target: id})
	}
}

// enqueue drops the message when the queue is full or the service is
// stopping; a stalled consumer must not back-pressure the monitor loop.
func (s *Service) enqueue(q queued) {
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.queue <- q:
	default:
		logger.Warn("notification queue full, dropping message",
			logger.KeyQueueDepth, len(s.queue),
			"type", string(q.env.Type))
	}
}

// process is the single consumer draining the queue.
func (s *Service) process() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			// Drain what is already queued, then exit.
			for {
				select {
				case q := <-s.queue:
					s.deliver(q)
				default:
					return
				}
			}
		case q := <-s.queue:
			s.deliver(q)
		}
	}
}

func (s *Service) deliver(q queued) {
	if q.target != "" {
		s.mu.RLock()
		sub, ok := s.subs[q.target]
		s.mu.RUnlock()
		if ok {
			s.send(sub, q.env)
		}
		return
	}

	// Broadcast over a snapshot of the registry so sends happen without
	// holding the lock.
	s.mu.RLock()
	targets := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		targets = append(targets, sub)
	}
	s.mu.RUnlock()

	for _, sub := range targets {
		if sub.matches(q.env) {
			s.send(sub, q.env)
		}
	}
}

// send delivers one envelope; failure disconnects that subscription and
// only that one. The message is not re-queued.
func (s *Service) send(sub *Subscription, env *Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	if err := sub.transport.Send(ctx, env); err != nil {
		logger.Warn("notification send failed, disconnecting subscription",
			logger.SubscriptionID(sub.ID), logger.Err(err))
		s.Disconnect(sub.ID)
	}
}

// Stop halts the processor, waits for the drain, and closes every
// subscription.
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[string]*Subscription)
	s.byUser = make(map[string][]string)
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.transport.Close()
	}
	return nil
}
