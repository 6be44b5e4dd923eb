package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/permanent"

	"firebase.google.com/go/v4/messaging"
)

type flakySender struct {
	mu    sync.Mutex
	fails int
	err   error
	calls int
	kinds []string
}

func (s *flakySender) Type() string { return "fake" }

func (s *flakySender) record(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.kinds = append(s.kinds, kind)
	if s.calls <= s.fails {
		if s.err != nil {
			return s.err
		}
		return errors.New("temporary error")
	}
	return nil
}

func (s *flakySender) NotifyPokemon(context.Context, domain.PokemonAlert) error {
	return s.record("pokemon")
}

func (s *flakySender) NotifyRaid(context.Context, domain.RaidAlert) error {
	return s.record("raid")
}

func (s *flakySender) NotifyEgg(context.Context, domain.RaidAlert) error {
	return s.record("egg")
}

func (s *flakySender) NotifyGym(context.Context, domain.GymAlert) error {
	return s.record("gym")
}

func testConfig(endpoints ...config.Endpoint) *config.Config {
	cfg := &config.Config{
		Endpoints: make(map[string]config.Endpoint),
		Targets:   make(map[string]config.Target),
	}
	names := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		cfg.Endpoints[endpoint.Name] = endpoint
		names = append(names, endpoint.Name)
	}
	cfg.Targets["me"] = config.Target{Name: "me", Endpoints: names}
	return cfg
}

func sampleIV(value float64) *float64 { return &value }

func sampleInt(value int) *int { return &value }

func samplePokemon() domain.PokemonAlert {
	return domain.PokemonAlert{
		EncounterID: "42",
		ID:          149,
		Name:        "Dragonite",
		Lat:         59.3,
		Lon:         18.1,
		CP:          sampleInt(3500),
		Level:       sampleInt(30),
		Attack:      sampleInt(15),
		Defense:     sampleInt(15),
		Stamina:     sampleInt(15),
		IV:          sampleIV(100),
		Move1:       "Dragon Tail",
		Move2:       "Outrage",
		Time:        "13:37",
		TimeLeft:    "12:00",
		GoogleMaps:  "https://www.google.com/maps/place/59.3,18.1",
		StaticMap:   "https://maps.googleapis.com/maps/api/staticmap?markers=59.3,18.1",
		Gamepress:   "https://pokemongo.gamepress.gg/pokemon/149",
		Sublocality: "Centrum",
	}
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	sender := &flakySender{fails: 2}
	cfg := testConfig(config.Endpoint{Name: "a", Retry: config.RetryConfig{Attempts: 3, DelayMS: 1}})
	dispatcher := newDispatcher(cfg, map[string]Sender{"a": sender}, nil)

	pokemon := samplePokemon()
	delivered := dispatcher.Deliver(context.Background(), domain.Alert{Kind: domain.AlertPokemon, Target: "me", Pokemon: &pokemon})
	if delivered != 1 {
		t.Fatalf("expected one delivery, got %d", delivered)
	}
	if sender.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sender.calls)
	}
}

func TestDispatcherGivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	sender := &flakySender{fails: 10}
	cfg := testConfig(config.Endpoint{Name: "a", Retry: config.RetryConfig{Attempts: 2, DelayMS: 1}})
	dispatcher := newDispatcher(cfg, map[string]Sender{"a": sender}, nil)

	gym := domain.GymAlert{TrainerName: "ash", Name: "Fountain"}
	if delivered := dispatcher.Deliver(context.Background(), domain.Alert{Kind: domain.AlertGym, Target: "me", Gym: &gym}); delivered != 0 {
		t.Fatalf("expected no delivery, got %d", delivered)
	}
	if sender.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", sender.calls)
	}
}

func TestDispatcherStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	sender := &flakySender{fails: 10, err: permanent.Mark(errors.New("bad request"))}
	cfg := testConfig(config.Endpoint{Name: "a", Retry: config.RetryConfig{Attempts: 5, DelayMS: 1}})
	dispatcher := newDispatcher(cfg, map[string]Sender{"a": sender}, nil)

	raid := domain.RaidAlert{Level: 5, Name: "Mewtwo"}
	dispatcher.Deliver(context.Background(), domain.Alert{Kind: domain.AlertRaid, Target: "me", Raid: &raid})
	if sender.calls != 1 {
		t.Fatalf("permanent errors must not be retried, got %d calls", sender.calls)
	}
}

func TestDispatcherFansOutAndRoutesByKind(t *testing.T) {
	t.Parallel()

	broken := &flakySender{fails: 10}
	healthy := &flakySender{}
	cfg := testConfig(
		config.Endpoint{Name: "broken", Retry: config.RetryConfig{Attempts: 1}},
		config.Endpoint{Name: "healthy", Retry: config.RetryConfig{Attempts: 1}},
	)
	dispatcher := newDispatcher(cfg, map[string]Sender{"broken": broken, "healthy": healthy}, nil)

	egg := domain.RaidAlert{Egg: true, Level: 4}
	if delivered := dispatcher.Deliver(context.Background(), domain.Alert{Kind: domain.AlertEgg, Target: "me", Raid: &egg}); delivered != 1 {
		t.Fatalf("expected healthy endpoint to receive alert, delivered=%d", delivered)
	}
	if len(healthy.kinds) != 1 || healthy.kinds[0] != "egg" {
		t.Fatalf("unexpected routed kinds %v", healthy.kinds)
	}
	if delivered := dispatcher.Deliver(context.Background(), domain.Alert{Kind: domain.AlertEgg, Target: "nobody", Raid: &egg}); delivered != 0 {
		t.Fatalf("unknown target must not deliver")
	}
}

func TestNewSenderRejectsUnknownType(t *testing.T) {
	t.Parallel()

	if _, err := NewSender(context.Background(), config.Endpoint{Name: "x", Type: "carrier-pigeon"}, Options{}, nil); err == nil {
		t.Fatalf("expected unsupported type error")
	}
	if _, err := NewSender(context.Background(), config.Endpoint{Name: "p", Type: config.EndpointPushbullet, APIKey: "k", Templates: map[string]string{"nope": "x"}}, Options{}, nil); err == nil {
		t.Fatalf("expected unknown template key error")
	}
}

func TestDiscordPokemonTitleVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*domain.PokemonAlert)
		want   string
	}{
		{
			name:   "perfect",
			mutate: func(*domain.PokemonAlert) {},
			want:   "Perfect **Dragonite** in **Centrum** until **13:37** (12:00 left)!",
		},
		{
			name: "worst",
			mutate: func(p *domain.PokemonAlert) {
				p.IV = sampleIV(0)
				p.Sublocality = ""
			},
			want: "Shittiest possible **Dragonite** found until **13:37** (12:00 left)!",
		},
		{
			name:   "partial",
			mutate: func(p *domain.PokemonAlert) { p.IV = sampleIV(97.8) },
			want:   "**Dragonite** (**98%**) in **Centrum** until **13:37** (12:00 left)!",
		},
		{
			name: "unknown iv",
			mutate: func(p *domain.PokemonAlert) {
				p.IV = nil
				p.Sublocality = ""
			},
			want: "**Dragonite** found until **13:37** (12:00 left)!",
		},
	}
	for _, tc := range cases {
		alert := samplePokemon()
		tc.mutate(&alert)
		if got := pokemonTitle(alert); got != tc.want {
			t.Fatalf("%s: title=%q want %q", tc.name, got, tc.want)
		}
	}
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received []discordPayload
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type=%q", r.Header.Get("Content-Type"))
		}
		var payload discordPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewDiscordSender(config.Endpoint{URL: server.URL, Username: "notifier"}, server.Client())
	if err := sender.NotifyPokemon(context.Background(), samplePokemon()); err != nil {
		t.Fatalf("notify pokemon: %v", err)
	}
	if err := sender.NotifyGym(context.Background(), domain.GymAlert{
		TrainerName: "ash",
		Name:        "Fountain",
		TeamName:    "Valor",
		GoogleMaps:  "https://maps/gym",
	}); err != nil {
		t.Fatalf("notify gym: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(received))
	}
	embed := received[0].Embeds[0]
	wantDescription := "IV: **15/15/15**\nMoves: **Dragon Tail - Outrage**\n[About Dragonite](https://pokemongo.gamepress.gg/pokemon/149)"
	if embed.Description != wantDescription {
		t.Fatalf("description=%q", embed.Description)
	}
	if embed.Title != "Open Google Maps" || embed.Thumbnail == nil || !strings.HasSuffix(embed.Thumbnail.URL, "/149.png") {
		t.Fatalf("unexpected embed %+v", embed)
	}
	if received[0].Username != "notifier" {
		t.Fatalf("username=%q", received[0].Username)
	}
	gym := received[1]
	if gym.Content != "**ash** joined a gym!" {
		t.Fatalf("gym content=%q", gym.Content)
	}
	if gym.Embeds[0].Description != "Gym Name: Fountain\nGym Team: Valor" || !strings.HasSuffix(gym.Embeds[0].Thumbnail.URL, "gym_Valor.png") {
		t.Fatalf("unexpected gym embed %+v", gym.Embeds[0])
	}
}

func TestDiscordStatusClassification(t *testing.T) {
	t.Parallel()

	status := http.StatusBadRequest
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	sender := NewDiscordSender(config.Endpoint{URL: server.URL}, server.Client())
	err := sender.NotifyGym(context.Background(), domain.GymAlert{TrainerName: "ash"})
	if err == nil || permanent.ReasonOf(err) != "http_status" {
		t.Fatalf("400 must be permanent, got %v", err)
	}
	if !strings.Contains(err.Error(), "status=400 body=nope") {
		t.Fatalf("error must include status and body: %v", err)
	}

	mu.Lock()
	status = http.StatusTooManyRequests
	mu.Unlock()
	err = sender.NotifyGym(context.Background(), domain.GymAlert{TrainerName: "ash"})
	if err == nil || permanent.Is(err) {
		t.Fatalf("429 must be retryable, got %v", err)
	}
}

func TestPushbulletSenderSendsNote(t *testing.T) {
	t.Parallel()

	var got pushbulletNote
	var user, pass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	templates, err := CompileTemplates(map[string]string{"gym_title": "{{ .TrainerName }} @ {{ .Name }}"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sender := NewPushbulletSender(config.Endpoint{APIKey: "secret"}, server.URL, server.Client(), templates)
	if err := sender.NotifyPokemon(context.Background(), samplePokemon()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if user != "secret" || pass != "" {
		t.Fatalf("basic auth user=%q pass=%q", user, pass)
	}
	if got.Type != "note" || got.Title != "Dragonite (100%) in Centrum" {
		t.Fatalf("unexpected note %+v", got)
	}
	for _, fragment := range []string{"Available until 13:37 (12:00 left).", "IV: 15/15/15", "CP: 3500 (level 30)", "Moves: Dragon Tail - Outrage"} {
		if !strings.Contains(got.Body, fragment) {
			t.Fatalf("body %q missing %q", got.Body, fragment)
		}
	}

	if err := sender.NotifyGym(context.Background(), domain.GymAlert{TrainerName: "ash", Name: "Fountain"}); err != nil {
		t.Fatalf("notify gym: %v", err)
	}
	if got.Title != "ash @ Fountain" {
		t.Fatalf("override title=%q", got.Title)
	}
}

func TestPushbulletTemplateOmitsUnknownStats(t *testing.T) {
	t.Parallel()

	templates, err := CompileTemplates(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	alert := samplePokemon()
	alert.IV, alert.Attack, alert.Defense, alert.Stamina, alert.CP, alert.Level = nil, nil, nil, nil, nil, nil
	alert.Move1, alert.Move2 = "", ""
	title, body, err := templates.Render("pokemon", alert)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if title != "Dragonite in Centrum" {
		t.Fatalf("title=%q", title)
	}
	if strings.Contains(body, "IV:") || strings.Contains(body, "CP:") || strings.Contains(body, "Moves:") {
		t.Fatalf("body must omit unknown stats: %q", body)
	}
}

func TestTelegramSenderSend(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		chatIDs  []string
		texts    []string
		parseMod []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(2 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		mu.Lock()
		chatIDs = append(chatIDs, r.FormValue("chat_id"))
		texts = append(texts, r.FormValue("text"))
		parseMod = append(parseMod, r.FormValue("parse_mode"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":1,"chat":{"id":1,"type":"private"}}}`)
	}))
	defer server.Close()

	templates, err := CompileTemplates(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sender, err := NewTelegramSender(config.Endpoint{BotToken: "token", ChatID: "-100", APIBaseURL: server.URL}, templates)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if err := sender.NotifyGym(context.Background(), domain.GymAlert{TrainerName: "<ash>", Name: "Fountain", TeamName: "Mystic"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 1 {
		t.Fatalf("expected one request, got %d", len(texts))
	}
	if chatIDs[0] != "-100" || parseMod[0] != "HTML" {
		t.Fatalf("chat=%q parse_mode=%q", chatIDs[0], parseMod[0])
	}
	if !strings.HasPrefix(texts[0], "<b>&lt;ash&gt; joined a gym!</b>\nFountain (Mystic)") {
		t.Fatalf("text=%q", texts[0])
	}
}

func TestNormalizeChatID(t *testing.T) {
	t.Parallel()

	if got := normalizeChatID(" 12345 "); got != int64(12345) {
		t.Fatalf("numeric chat id=%v", got)
	}
	if got := normalizeChatID("@channel"); got != "@channel" {
		t.Fatalf("named chat id=%v", got)
	}
}

type fakeMessaging struct {
	messages []*messaging.Message
	err      error
}

func (f *fakeMessaging) Send(_ context.Context, message *messaging.Message) (string, error) {
	f.messages = append(f.messages, message)
	if f.err != nil {
		return "", f.err
	}
	return "projects/p/messages/1", nil
}

func TestFirebaseSenderTopicAndToken(t *testing.T) {
	t.Parallel()

	templates, err := CompileTemplates(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	client := &fakeMessaging{}
	sender := NewFirebaseSender(config.Endpoint{Topic: "raids"}, client, templates)
	raid := domain.RaidAlert{Level: 5, Name: "Mewtwo", GymID: "g1", GymName: "Fountain", End: "14:00", UntilEnd: "30:00", StaticMap: "https://static"}
	if err := sender.NotifyRaid(context.Background(), raid); err != nil {
		t.Fatalf("notify raid: %v", err)
	}
	message := client.messages[0]
	if message.Topic != "raids" || message.Token != "" {
		t.Fatalf("unexpected destination topic=%q token=%q", message.Topic, message.Token)
	}
	if message.Notification.Title != "Level 5 raid: Mewtwo" || message.Notification.ImageURL != "https://static" {
		t.Fatalf("unexpected notification %+v", message.Notification)
	}
	if message.Data["kind"] != "raid" || message.Data["level"] != "5" {
		t.Fatalf("unexpected data %v", message.Data)
	}

	tokenSender := NewFirebaseSender(config.Endpoint{DeviceToken: "device", Topic: "ignored"}, client, templates)
	if err := tokenSender.NotifyPokemon(context.Background(), samplePokemon()); err != nil {
		t.Fatalf("notify pokemon: %v", err)
	}
	if got := client.messages[1]; got.Token != "device" || got.Topic != "" {
		t.Fatalf("token must win over topic: %+v", got)
	}

	empty := NewFirebaseSender(config.Endpoint{}, client, templates)
	if err := empty.NotifyGym(context.Background(), domain.GymAlert{}); !permanent.Is(err) {
		t.Fatalf("missing destination must be permanent, got %v", err)
	}
}

func TestNewSenderUsesFirebaseFactory(t *testing.T) {
	t.Parallel()

	client := &fakeMessaging{}
	var seen string
	sender, err := NewSender(context.Background(), config.Endpoint{
		Name:            "fcm",
		Type:            config.EndpointFirebase,
		CredentialsFile: "/creds.json",
		Topic:           "all",
	}, Options{FirebaseFactory: func(_ context.Context, endpoint config.Endpoint) (MessagingClient, error) {
		seen = endpoint.CredentialsFile
		return client, nil
	}}, nil)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if sender.Type() != config.EndpointFirebase || seen != "/creds.json" {
		t.Fatalf("factory not used: type=%s creds=%q", sender.Type(), seen)
	}
}

func TestSimpleSenderLogsJSONPayloadWithoutMissingFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sender := NewSimpleSender(slog.New(slog.NewJSONHandler(&buf, nil)))
	alert := domain.PokemonAlert{EncounterID: "E1", ID: 1, Name: "Bulbasaur", Time: "13:37", TimeLeft: "10:00"}
	if err := sender.NotifyPokemon(context.Background(), alert); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if strings.Contains(buf.String(), "<nil>") {
		t.Fatalf("log must not print nil pointers: %s", buf.String())
	}

	var record struct {
		Pokemon map[string]any `json:"pokemon"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record %q: %v", buf.String(), err)
	}
	if record.Pokemon["name"] != "Bulbasaur" || record.Pokemon["time_left"] != "10:00" {
		t.Fatalf("unexpected payload %v", record.Pokemon)
	}
	for _, key := range []string{"cp", "level", "attack", "iv", "move_1"} {
		if _, ok := record.Pokemon[key]; ok {
			t.Fatalf("payload must omit %q: %v", key, record.Pokemon)
		}
	}
}
