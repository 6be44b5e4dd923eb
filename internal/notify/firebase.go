package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/permanent"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// MessagingClient is the subset of the FCM client used for delivery.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NewFirebaseClient initializes an FCM client from the endpoint credentials file.
// Params: context and firebase endpoint config.
// Returns: messaging client or init error.
func NewFirebaseClient(ctx context.Context, endpoint config.Endpoint) (MessagingClient, error) {
	opt := option.WithCredentialsFile(endpoint.CredentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	return client, nil
}

// FirebaseSender pushes rendered alerts to one device token or topic.
type FirebaseSender struct {
	client    MessagingClient
	token     string
	topic     string
	templates *TemplateSet
}

// NewFirebaseSender creates an FCM sender.
// Params: endpoint config (device_token or topic), messaging client, compiled templates.
// Returns: initialized sender.
func NewFirebaseSender(endpoint config.Endpoint, client MessagingClient, templates *TemplateSet) *FirebaseSender {
	return &FirebaseSender{
		client:    client,
		token:     strings.TrimSpace(endpoint.DeviceToken),
		topic:     strings.TrimSpace(endpoint.Topic),
		templates: templates,
	}
}

// Type returns the endpoint type key.
func (s *FirebaseSender) Type() string {
	return config.EndpointFirebase
}

// NotifyPokemon pushes a creature notification with map preview.
func (s *FirebaseSender) NotifyPokemon(ctx context.Context, alert domain.PokemonAlert) error {
	data := map[string]string{
		"kind":         string(domain.AlertPokemon),
		"encounter_id": alert.EncounterID,
		"pokemon_id":   strconv.Itoa(alert.ID),
		"lat":          strconv.FormatFloat(alert.Lat, 'f', -1, 64),
		"lon":          strconv.FormatFloat(alert.Lon, 'f', -1, 64),
		"google_maps":  alert.GoogleMaps,
	}
	return s.send(ctx, "pokemon", alert, alert.StaticMap, data)
}

// NotifyRaid pushes a raid boss notification.
func (s *FirebaseSender) NotifyRaid(ctx context.Context, alert domain.RaidAlert) error {
	return s.send(ctx, "raid", alert, alert.StaticMap, raidData(domain.AlertRaid, alert))
}

// NotifyEgg pushes an egg notification.
func (s *FirebaseSender) NotifyEgg(ctx context.Context, alert domain.RaidAlert) error {
	return s.send(ctx, "egg", alert, alert.StaticMap, raidData(domain.AlertEgg, alert))
}

// NotifyGym pushes a gym roster notification.
func (s *FirebaseSender) NotifyGym(ctx context.Context, alert domain.GymAlert) error {
	data := map[string]string{
		"kind":        string(domain.AlertGym),
		"gym_id":      alert.GymID,
		"trainer":     alert.TrainerName,
		"google_maps": alert.GoogleMaps,
	}
	return s.send(ctx, "gym", alert, alert.StaticMap, data)
}

func raidData(kind domain.AlertKind, alert domain.RaidAlert) map[string]string {
	return map[string]string{
		"kind":        string(kind),
		"gym_id":      alert.GymID,
		"level":       strconv.Itoa(alert.Level),
		"google_maps": alert.GoogleMaps,
	}
}

func (s *FirebaseSender) send(ctx context.Context, kind string, payload any, image string, data map[string]string) error {
	if s.token == "" && s.topic == "" {
		return permanent.Mark(errors.New("firebase endpoint needs device_token or topic"))
	}
	title, body, err := s.templates.Render(kind, payload)
	if err != nil {
		return permanent.Reject(ReasonTemplate, err)
	}
	message := &messaging.Message{
		Token: s.token,
		Notification: &messaging.Notification{
			Title:    title,
			Body:     body,
			ImageURL: image,
		},
		Data: data,
	}
	if s.token == "" {
		message.Topic = s.topic
	}
	if _, err := s.client.Send(ctx, message); err != nil {
		if messaging.IsInvalidArgument(err) || messaging.IsUnregistered(err) {
			return permanent.Reject("unregistered", fmt.Errorf("firebase send: %w", err))
		}
		return fmt.Errorf("firebase send: %w", err)
	}
	return nil
}
