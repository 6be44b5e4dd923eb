package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trew/PokemonGoMapNotifier/internal/clock"
	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/notify"
)

type discordRecorder struct {
	mu       sync.Mutex
	payloads []map[string]any
	received chan struct{}
}

func (r *discordRecorder) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	var payload map[string]any
	_ = json.NewDecoder(request.Body).Decode(&payload)
	r.mu.Lock()
	r.payloads = append(r.payloads, payload)
	r.mu.Unlock()
	writer.WriteHeader(http.StatusNoContent)
	r.received <- struct{}{}
}

func newTestService(t *testing.T, hookURL string, now time.Time) *Service {
	t.Helper()
	body := fmt.Sprintf(`{
  // service log goes to a temp file to keep test output clean
  "service": {"log": {"file": {"enabled": true, "path": %q}}},
  "endpoints": {"hook": {"type": "discord", "url": %q, "retry": {"attempts": 1}}},
  "includes": {"all": {"pokemons": [{"min_id": 0, "max_id": 999}]}},
  "notification_settings": {"Me": {"includes": ["all"], "endpoints": ["hook"]}}
}`, filepath.Join(t.TempDir(), "service.log"), hookURL)
	cfg, err := config.Parse([]byte(body), "jsonc")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	service, err := NewServiceWithConfig(context.Background(), cfg, clock.Func(func() time.Time { return now }), notify.Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestServiceWebhookDeliversToDiscord(t *testing.T) {
	t.Parallel()

	recorder := &discordRecorder{received: make(chan struct{}, 4)}
	hook := httptest.NewServer(recorder)
	defer hook.Close()

	now := time.Unix(1_700_000_000, 0)
	service := newTestService(t, hook.URL, now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = service.manager.Run(ctx) }()

	router := service.Handler()
	body := fmt.Sprintf(`{"type":"pokemon","message":{"encounter_id":"E1","pokemon_id":149,"latitude":59.33,"longitude":18.06,"disappear_time":%d}}`,
		now.Add(10*time.Minute).Unix())
	for i := 0; i < 2; i++ {
		recorderResp := httptest.NewRecorder()
		router.ServeHTTP(recorderResp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		if recorderResp.Code != http.StatusAccepted {
			t.Fatalf("webhook status=%d", recorderResp.Code)
		}
	}

	select {
	case <-recorder.received:
	case <-time.After(3 * time.Second):
		t.Fatalf("discord hook was not called")
	}
	select {
	case <-recorder.received:
		t.Fatalf("duplicate encounter must not be delivered twice")
	case <-time.After(200 * time.Millisecond):
	}

	recorder.mu.Lock()
	content, _ := recorder.payloads[0]["content"].(string)
	recorder.mu.Unlock()
	if !strings.Contains(content, "**Dragonite**") || !strings.Contains(content, "(10:00 left)") {
		t.Fatalf("unexpected discord content %q", content)
	}
}

func TestServiceProbesAndMetrics(t *testing.T) {
	t.Parallel()

	service := newTestService(t, "http://127.0.0.1:1/unused", time.Unix(1_700_000_000, 0))
	router := service.Handler()

	probe := func(path string) (int, string) {
		response := httptest.NewRecorder()
		router.ServeHTTP(response, httptest.NewRequest(http.MethodGet, path, nil))
		body, _ := io.ReadAll(response.Result().Body)
		return response.Code, string(body)
	}

	if code, _ := probe("/healthz"); code != http.StatusOK {
		t.Fatalf("healthz=%d", code)
	}
	if code, body := probe("/readyz"); code != http.StatusServiceUnavailable || body != "not-ready" {
		t.Fatalf("readyz before run=%d %q", code, body)
	}
	service.readyFlag.Store(true)
	if code, _ := probe("/readyz"); code != http.StatusOK {
		t.Fatalf("readyz after ready=%d", code)
	}
	code, body := probe("/metrics")
	if code != http.StatusOK || !strings.Contains(body, "notifier_queue_depth") {
		t.Fatalf("metrics=%d body missing notifier_queue_depth", code)
	}
}
