package ingest

import (
	"sync"
	"testing"
	"time"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/test/testutil"
)

type syncSink struct {
	mu        sync.Mutex
	envelopes []domain.Envelope
}

func (s *syncSink) Push(envelope domain.Envelope) error {
	return s.PushBatch([]domain.Envelope{envelope})
}

func (s *syncSink) PushBatch(envelopes []domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, envelopes...)
	return nil
}

func (s *syncSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.envelopes)
}

func TestNATSSubscriberCreatesStreamAndConsumes(t *testing.T) {
	url, stop := testutil.StartLocalNATSServer(t)
	defer stop()

	cfg := config.NATSIngestConfig{
		Enabled:       true,
		URL:           []string{url},
		Subject:       "notifier.test",
		Stream:        "NOTIFIER_TEST",
		Durable:       "notifier-test",
		Queue:         "notifier-test-workers",
		AckWaitSec:    5,
		NackDelayMS:   10,
		MaxDeliver:    -1,
		MaxAckPending: 64,
	}
	sink := &syncSink{}
	subscriber, err := NewNATSSubscriber(cfg, sink, nil)
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	defer func() { _ = subscriber.Close() }()

	testutil.PublishJetStream(t, url, cfg.Subject,
		[]byte("["+testEnvelopeJSON("N1")+","+testEnvelopeJSON("N2")+"]"),
		[]byte("not json"),
	)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && sink.count() < 2 {
		time.Sleep(20 * time.Millisecond)
	}
	if got := sink.count(); got != 2 {
		t.Fatalf("expected 2 envelopes, got %d", got)
	}
}
