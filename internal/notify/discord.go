package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/enrich"
	"github.com/trew/PokemonGoMapNotifier/internal/permanent"
)

// DiscordSender posts webhook messages with one embed.
type DiscordSender struct {
	url       string
	username  string
	avatarURL string
	client    *http.Client
}

type discordPayload struct {
	Content   string         `json:"content"`
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string        `json:"title"`
	URL         string        `json:"url,omitempty"`
	Description string        `json:"description,omitempty"`
	Thumbnail   *discordImage `json:"thumbnail,omitempty"`
	Image       *discordImage `json:"image,omitempty"`
}

type discordImage struct {
	URL string `json:"url"`
}

// NewDiscordSender creates a webhook sender.
// Params: discord endpoint config and shared HTTP client.
// Returns: initialized sender.
func NewDiscordSender(endpoint config.Endpoint, client *http.Client) *DiscordSender {
	return &DiscordSender{
		url:       strings.TrimSpace(endpoint.URL),
		username:  endpoint.Username,
		avatarURL: endpoint.AvatarURL,
		client:    client,
	}
}

// Type returns the endpoint type key.
func (s *DiscordSender) Type() string {
	return config.EndpointDiscord
}

// NotifyPokemon posts the headline plus an IV/moves embed.
func (s *DiscordSender) NotifyPokemon(ctx context.Context, alert domain.PokemonAlert) error {
	return s.post(ctx, pokemonPayload(alert))
}

// NotifyRaid posts a hatched raid boss.
func (s *DiscordSender) NotifyRaid(ctx context.Context, alert domain.RaidAlert) error {
	return s.post(ctx, raidPayload(alert))
}

// NotifyEgg posts an upcoming raid egg.
func (s *DiscordSender) NotifyEgg(ctx context.Context, alert domain.RaidAlert) error {
	return s.post(ctx, eggPayload(alert))
}

// NotifyGym posts a trainer joining a gym.
func (s *DiscordSender) NotifyGym(ctx context.Context, alert domain.GymAlert) error {
	return s.post(ctx, gymPayload(alert))
}

func (s *DiscordSender) post(ctx context.Context, payload discordPayload) error {
	if s.url == "" {
		return permanent.Mark(fmt.Errorf("discord url is required"))
	}
	payload.Username = s.username
	payload.AvatarURL = s.avatarURL
	body, err := json.Marshal(payload)
	if err != nil {
		return permanent.Mark(fmt.Errorf("discord encode: %w", err))
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return permanent.Mark(fmt.Errorf("discord request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusNoContent {
		return unexpectedHTTPStatusError("discord send", response)
	}
	return nil
}

// pokemonTitle builds the message line, e.g. "Perfect **Dragonite** in **Centrum** until **13:37** (12:00 left)!".
func pokemonTitle(alert domain.PokemonAlert) string {
	var title strings.Builder
	perfect := alert.IV != nil && *alert.IV == 100
	worst := alert.IV != nil && *alert.IV == 0
	switch {
	case perfect:
		title.WriteString("Perfect ")
	case worst:
		title.WriteString("Shittiest possible ")
	}
	fmt.Fprintf(&title, "**%s**", alert.Name)
	if alert.IV != nil && !perfect && !worst {
		fmt.Fprintf(&title, " (**%d%%**)", int(math.Round(*alert.IV)))
	}
	if alert.Sublocality != "" {
		fmt.Fprintf(&title, " in **%s** until **%s**", alert.Sublocality, alert.Time)
	} else {
		fmt.Fprintf(&title, " found until **%s**", alert.Time)
	}
	fmt.Fprintf(&title, " (%s left)!", alert.TimeLeft)
	return title.String()
}

func pokemonPayload(alert domain.PokemonAlert) discordPayload {
	var description strings.Builder
	if alert.Attack != nil && alert.Defense != nil && alert.Stamina != nil {
		fmt.Fprintf(&description, "IV: **%d/%d/%d**\n", *alert.Attack, *alert.Defense, *alert.Stamina)
	}
	if alert.Move1 != "" && alert.Move2 != "" {
		fmt.Fprintf(&description, "Moves: **%s - %s**\n", alert.Move1, alert.Move2)
	}
	fmt.Fprintf(&description, "[About %s](%s)", alert.Name, alert.Gamepress)

	return discordPayload{
		Content: pokemonTitle(alert),
		Embeds: []discordEmbed{{
			Title:       "Open Google Maps",
			URL:         alert.GoogleMaps,
			Description: description.String(),
			Thumbnail:   &discordImage{URL: enrich.IconURL(alert.ID)},
			Image:       &discordImage{URL: alert.StaticMap},
		}},
	}
}

func raidPayload(alert domain.RaidAlert) discordPayload {
	content := fmt.Sprintf("Level %d raid: **%s** at **%s** until **%s** (%s left)!",
		alert.Level, alert.Name, alert.GymName, alert.End, alert.UntilEnd)
	var description strings.Builder
	if alert.CP != nil {
		fmt.Fprintf(&description, "CP: **%d**\n", *alert.CP)
	}
	if alert.Move1 != "" && alert.Move2 != "" {
		fmt.Fprintf(&description, "Moves: **%s - %s**\n", alert.Move1, alert.Move2)
	}
	if alert.Gamepress != "" {
		fmt.Fprintf(&description, "[About %s](%s)", alert.Name, alert.Gamepress)
	}
	return discordPayload{
		Content: content,
		Embeds: []discordEmbed{{
			Title:       "Open Google Maps",
			URL:         alert.GoogleMaps,
			Description: strings.TrimSpace(description.String()),
			Thumbnail:   thumbnail(alert.Icon),
			Image:       &discordImage{URL: alert.StaticMap},
		}},
	}
}

func eggPayload(alert domain.RaidAlert) discordPayload {
	return discordPayload{
		Content: fmt.Sprintf("Level %d egg at **%s** hatches at **%s** (%s left)!",
			alert.Level, alert.GymName, alert.Start, alert.UntilStart),
		Embeds: []discordEmbed{{
			Title:       "Open Google Maps",
			URL:         alert.GoogleMaps,
			Description: fmt.Sprintf("Raid ends at **%s**", alert.End),
			Thumbnail:   thumbnail(alert.Icon),
			Image:       &discordImage{URL: alert.StaticMap},
		}},
	}
}

func gymPayload(alert domain.GymAlert) discordPayload {
	embed := discordEmbed{
		Title: "Open Google Maps",
		URL:   alert.GoogleMaps,
		Image: &discordImage{URL: alert.StaticMap},
	}
	if alert.TeamName != "" {
		embed.Description = fmt.Sprintf("Gym Name: %s\nGym Team: %s", alert.Name, alert.TeamName)
		embed.Thumbnail = &discordImage{URL: enrich.GymIconURL(alert.TeamName)}
	} else {
		embed.Description = fmt.Sprintf("Gym Name: %s", alert.Name)
	}
	return discordPayload{
		Content: fmt.Sprintf("**%s** joined a gym!", alert.TrainerName),
		Embeds:  []discordEmbed{embed},
	}
}

func thumbnail(url string) *discordImage {
	if url == "" {
		return nil
	}
	return &discordImage{URL: url}
}
