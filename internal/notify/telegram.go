package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/permanent"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramSender sends rendered alerts to one Telegram chat.
// Params: bot token, chat id, and optional API base URL.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client    *tgbot.Bot
	chatID    any
	templates *TemplateSet
}

// NewTelegramSender creates a Telegram sender without calling getMe.
// Params: telegram endpoint config and compiled templates.
// Returns: initialized sender or bot init error.
func NewTelegramSender(endpoint config.Endpoint, templates *TemplateSet) (*TelegramSender, error) {
	if strings.TrimSpace(endpoint.BotToken) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if strings.TrimSpace(endpoint.ChatID) == "" {
		return nil, errors.New("telegram chat_id is required")
	}

	options := []tgbot.Option{tgbot.WithSkipGetMe()}
	if base := strings.TrimRight(strings.TrimSpace(endpoint.APIBaseURL), "/"); base != "" {
		options = append(options, tgbot.WithServerURL(base))
	}
	botClient, err := tgbot.New(endpoint.BotToken, options...)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramSender{
		client:    botClient,
		chatID:    normalizeChatID(endpoint.ChatID),
		templates: templates,
	}, nil
}

// Type returns the endpoint type key.
func (s *TelegramSender) Type() string {
	return config.EndpointTelegram
}

// NotifyPokemon sends a creature message.
func (s *TelegramSender) NotifyPokemon(ctx context.Context, alert domain.PokemonAlert) error {
	return s.send(ctx, "pokemon", alert)
}

// NotifyRaid sends a raid boss message.
func (s *TelegramSender) NotifyRaid(ctx context.Context, alert domain.RaidAlert) error {
	return s.send(ctx, "raid", alert)
}

// NotifyEgg sends an egg message.
func (s *TelegramSender) NotifyEgg(ctx context.Context, alert domain.RaidAlert) error {
	return s.send(ctx, "egg", alert)
}

// NotifyGym sends a gym roster message.
func (s *TelegramSender) NotifyGym(ctx context.Context, alert domain.GymAlert) error {
	return s.send(ctx, "gym", alert)
}

func (s *TelegramSender) send(ctx context.Context, kind string, payload any) error {
	title, body, err := s.templates.Render(kind, payload)
	if err != nil {
		return permanent.Reject(ReasonTemplate, err)
	}
	text := "<b>" + html.EscapeString(title) + "</b>"
	if body != "" {
		text += "\n" + html.EscapeString(body)
	}
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
// Params: configured chat ID value.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
