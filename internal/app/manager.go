package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trew/PokemonGoMapNotifier/internal/clock"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/engine"
	"github.com/trew/PokemonGoMapNotifier/internal/metrics"
)

// DefaultSweepEvery is the number of processed envelopes between dedup sweeps.
const DefaultSweepEvery = 5000

// ErrManagerClosed is returned by Push after Close.
var ErrManagerClosed = errors.New("manager is closed")

// EventHandler processes envelopes and sweeps expired dedup state.
type EventHandler interface {
	Handle(ctx context.Context, envelope domain.Envelope) (int, error)
	Sweep(now time.Time) int
}

// Manager queues inbound envelopes and feeds them to one worker.
// Params: event handler, sweep interval, logger and clock.
// Returns: ingest sink plus Run worker loop.
type Manager struct {
	handler    EventHandler
	sweepEvery int
	logger     *slog.Logger
	clock      clock.Clock

	mu        sync.Mutex
	items     []queueItem
	closed    bool
	wake      chan struct{}
	processed int
}

type queueItem struct {
	id       string
	envelope domain.Envelope
	queuedAt time.Time
}

// NewManager creates manager with an empty queue.
// Params: event handler, sweep interval (<=0 uses default), logger and clock.
// Returns: initialized manager.
func NewManager(handler EventHandler, sweepEvery int, logger *slog.Logger, clk clock.Clock) *Manager {
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepEvery
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{
		handler:    handler,
		sweepEvery: sweepEvery,
		logger:     logger,
		clock:      clk,
		wake:       make(chan struct{}, 1),
	}
}

// Push enqueues one envelope without waiting for processing.
// Params: decoded envelope.
// Returns: ErrManagerClosed after Close.
func (m *Manager) Push(envelope domain.Envelope) error {
	return m.PushBatch([]domain.Envelope{envelope})
}

// PushBatch enqueues envelopes in order.
// Params: decoded envelopes.
// Returns: ErrManagerClosed after Close.
func (m *Manager) PushBatch(envelopes []domain.Envelope) error {
	now := m.clock.Now()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	for _, envelope := range envelopes {
		m.items = append(m.items, queueItem{id: uuid.NewString(), envelope: envelope, queuedAt: now})
	}
	metrics.QueueDepth.Set(float64(len(m.items)))
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued envelopes.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close stops accepting envelopes; queued ones are still processed by Run.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run processes queued envelopes in arrival order until ctx is done,
// or until the manager is closed and the queue is drained.
// Params: worker context passed to the handler.
// Returns: ctx error on cancellation, nil after a drained Close.
func (m *Manager) Run(ctx context.Context) error {
	for {
		item, ok, closed := m.pop()
		if !ok {
			if closed {
				return nil
			}
			select {
			case <-ctx.Done():
				m.logDropped()
				return ctx.Err()
			case <-m.wake:
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			m.logDropped()
			return err
		}
		m.process(ctx, item)
	}
}

func (m *Manager) pop() (queueItem, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return queueItem{}, false, m.closed
	}
	item := m.items[0]
	m.items[0] = queueItem{}
	m.items = m.items[1:]
	metrics.QueueDepth.Set(float64(len(m.items)))
	return item, true, m.closed
}

func (m *Manager) process(ctx context.Context, item queueItem) {
	notified, err := m.handler.Handle(ctx, item.envelope)
	switch {
	case errors.Is(err, domain.ErrMalformedEvent), errors.Is(err, engine.ErrUnknownEventType):
		m.logger.Debug("event dropped", "event_id", item.id, "type", item.envelope.Type, "error", err.Error())
	case err != nil:
		m.logger.Error("event processing failed", "event_id", item.id, "type", item.envelope.Type, "error", err.Error())
	case notified > 0:
		m.logger.Debug("event dispatched",
			"event_id", item.id,
			"type", item.envelope.Type,
			"targets", notified,
			"queued_for", m.clock.Now().Sub(item.queuedAt).String(),
		)
	}

	m.processed++
	if m.processed%m.sweepEvery == 0 {
		removed := m.handler.Sweep(m.clock.Now())
		m.logger.Debug("dedup sweep", "removed", removed, "processed", m.processed)
	}
}

func (m *Manager) logDropped() {
	if pending := m.Pending(); pending > 0 {
		m.logger.Warn("worker stopped with queued events", "pending", pending)
	}
}
