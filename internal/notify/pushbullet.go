package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/permanent"
)

// DefaultPushbulletURL is the public pushes endpoint.
const DefaultPushbulletURL = "https://api.pushbullet.com/v2/pushes"

// PushbulletSender posts note pushes rendered from templates.
type PushbulletSender struct {
	url       string
	apiKey    string
	client    *http.Client
	templates *TemplateSet
}

type pushbulletNote struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NewPushbulletSender creates a Pushbullet sender.
// Params: endpoint config, API URL override (empty for default), HTTP client, compiled templates.
// Returns: initialized sender.
func NewPushbulletSender(endpoint config.Endpoint, apiURL string, client *http.Client, templates *TemplateSet) *PushbulletSender {
	if strings.TrimSpace(endpoint.APIBaseURL) != "" {
		apiURL = strings.TrimRight(endpoint.APIBaseURL, "/") + "/v2/pushes"
	}
	if apiURL == "" {
		apiURL = DefaultPushbulletURL
	}
	return &PushbulletSender{
		url:       apiURL,
		apiKey:    strings.TrimSpace(endpoint.APIKey),
		client:    client,
		templates: templates,
	}
}

// Type returns the endpoint type key.
func (s *PushbulletSender) Type() string {
	return config.EndpointPushbullet
}

// NotifyPokemon pushes a creature note.
func (s *PushbulletSender) NotifyPokemon(ctx context.Context, alert domain.PokemonAlert) error {
	return s.push(ctx, "pokemon", alert)
}

// NotifyRaid pushes a raid boss note.
func (s *PushbulletSender) NotifyRaid(ctx context.Context, alert domain.RaidAlert) error {
	return s.push(ctx, "raid", alert)
}

// NotifyEgg pushes an egg note.
func (s *PushbulletSender) NotifyEgg(ctx context.Context, alert domain.RaidAlert) error {
	return s.push(ctx, "egg", alert)
}

// NotifyGym pushes a gym roster note.
func (s *PushbulletSender) NotifyGym(ctx context.Context, alert domain.GymAlert) error {
	return s.push(ctx, "gym", alert)
}

func (s *PushbulletSender) push(ctx context.Context, kind string, payload any) error {
	if s.apiKey == "" {
		return permanent.Mark(fmt.Errorf("pushbullet api_key is required"))
	}
	title, body, err := s.templates.Render(kind, payload)
	if err != nil {
		return permanent.Reject(ReasonTemplate, err)
	}
	encoded, err := json.Marshal(pushbulletNote{Type: "note", Title: title, Body: body})
	if err != nil {
		return permanent.Mark(fmt.Errorf("pushbullet encode: %w", err))
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(encoded))
	if err != nil {
		return permanent.Mark(fmt.Errorf("pushbullet request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")
	request.SetBasicAuth(s.apiKey, "")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("pushbullet send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return unexpectedHTTPStatusError("pushbullet send", response)
	}
	return nil
}
