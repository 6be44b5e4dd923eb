package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
)

// SimpleSender writes alerts to the service log.
type SimpleSender struct {
	logger *slog.Logger
}

// NewSimpleSender creates a log-only sender.
func NewSimpleSender(logger *slog.Logger) *SimpleSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimpleSender{logger: logger}
}

// Type returns the endpoint type key.
func (s *SimpleSender) Type() string {
	return config.EndpointSimple
}

// NotifyPokemon logs the full payload as JSON, without the fields the sighting lacks.
func (s *SimpleSender) NotifyPokemon(_ context.Context, alert domain.PokemonAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("simple encode: %w", err)
	}
	s.logger.Info("pokemon alert", slog.Any("pokemon", json.RawMessage(payload)))
	return nil
}

// NotifyRaid logs the boss and gym.
func (s *SimpleSender) NotifyRaid(_ context.Context, alert domain.RaidAlert) error {
	s.logger.Info("raid alert", "name", alert.Name, "level", alert.Level, "gym", alert.GymName, "end", alert.End)
	return nil
}

// NotifyEgg logs the egg level and gym.
func (s *SimpleSender) NotifyEgg(_ context.Context, alert domain.RaidAlert) error {
	s.logger.Info("egg alert", "level", alert.Level, "gym", alert.GymName, "start", alert.Start)
	return nil
}

// NotifyGym logs "<trainer> joined <gym>".
func (s *SimpleSender) NotifyGym(_ context.Context, alert domain.GymAlert) error {
	s.logger.Info(alert.TrainerName+" joined "+alert.Name, "gym_id", alert.GymID, "team", alert.TeamName)
	return nil
}
