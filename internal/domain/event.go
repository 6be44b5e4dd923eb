package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EventType identifies the webhook message family.
type EventType string

const (
	// EventTypePokemon marks one creature sighting.
	EventTypePokemon EventType = "pokemon"
	// EventTypeRaid marks one raid or egg at a gym.
	EventTypeRaid EventType = "raid"
	// EventTypeGymDetails marks one gym roster snapshot.
	EventTypeGymDetails EventType = "gym_details"
)

// ErrMalformedEvent marks inbound messages missing required fields.
var ErrMalformedEvent = errors.New("malformed event")

// Envelope is one inbound webhook item.
// Params: type discriminator and raw message body.
// Returns: undecoded envelope routed by the dispatch engine.
type Envelope struct {
	Type    EventType       `json:"type"`
	Message json.RawMessage `json:"message"`
}

// FlexString decodes JSON strings and numbers into one string value.
// Params: raw JSON scalar.
// Returns: string form of the scalar.
type FlexString string

// UnmarshalJSON accepts string or number payloads.
// Params: raw JSON token.
// Returns: decode error for non-scalar tokens.
func (f *FlexString) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		*f = FlexString(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = FlexString(number.String())
	return nil
}

// PokemonMessage is the creature sighting body.
type PokemonMessage struct {
	EncounterID       FlexString `json:"encounter_id"`
	PokemonID         *int       `json:"pokemon_id"`
	Latitude          *float64   `json:"latitude"`
	Longitude         *float64   `json:"longitude"`
	DisappearTime     *int64     `json:"disappear_time"`
	CP                *int       `json:"cp"`
	PokemonLevel      *int       `json:"pokemon_level"`
	CPMultiplier      *float64   `json:"cp_multiplier"`
	Form              *int       `json:"form"`
	IndividualAttack  *int       `json:"individual_attack"`
	IndividualDefense *int       `json:"individual_defense"`
	IndividualStamina *int       `json:"individual_stamina"`
	Move1             *int       `json:"move_1"`
	Move2             *int       `json:"move_2"`
}

// RaidMessage is the raid or egg body; a null pokemon_id means egg.
type RaidMessage struct {
	GymID     FlexString `json:"gym_id"`
	PokemonID *int       `json:"pokemon_id"`
	Start     *int64     `json:"start"`
	End       *int64     `json:"end"`
	Spawn     int64      `json:"spawn"`
	Level     int        `json:"level"`
	CP        *int       `json:"cp"`
	Move1     *int       `json:"move_1"`
	Move2     *int       `json:"move_2"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
}

// GymMember is one defender in a gym roster.
type GymMember struct {
	TrainerName  string `json:"trainer_name"`
	TrainerLevel int    `json:"trainer_level"`
	PokemonID    int    `json:"pokemon_id"`
	CP           int    `json:"cp"`
}

// GymDetailsMessage is the gym roster body.
type GymDetailsMessage struct {
	ID        FlexString  `json:"id"`
	Name      string      `json:"name"`
	Latitude  *float64    `json:"latitude"`
	Longitude *float64    `json:"longitude"`
	Team      int         `json:"team"`
	Pokemon   []GymMember `json:"pokemon"`
}

// DecodeEnvelopes decodes one envelope object or an array of envelopes.
// Params: raw request body.
// Returns: normalized envelopes or decode error; a lone envelope needs a type,
// batch items without one are kept so the engine drops them individually.
func DecodeEnvelopes(raw []byte) ([]Envelope, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	if payload[0] == '[' {
		var envelopes []Envelope
		if err := json.Unmarshal(payload, &envelopes); err != nil {
			return nil, fmt.Errorf("decode envelope batch: %w", err)
		}
		if len(envelopes) == 0 {
			return nil, errors.New("envelope batch must contain at least one item")
		}
		for i := range envelopes {
			envelopes[i].Type = normalizeType(envelopes[i].Type)
		}
		return envelopes, nil
	}

	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	envelope.Type = normalizeType(envelope.Type)
	if envelope.Type == "" {
		return nil, errors.New("envelope type is required")
	}
	return []Envelope{envelope}, nil
}

func normalizeType(value EventType) EventType {
	return EventType(strings.ToLower(strings.TrimSpace(string(value))))
}

// Known reports whether the type is one the dispatch engine handles.
func (t EventType) Known() bool {
	switch t {
	case EventTypePokemon, EventTypeRaid, EventTypeGymDetails:
		return true
	}
	return false
}

// DecodePokemon decodes and validates a creature message body.
// Params: raw message JSON.
// Returns: message or error wrapping ErrMalformedEvent.
func DecodePokemon(raw json.RawMessage) (PokemonMessage, error) {
	var message PokemonMessage
	if err := decodeMessage(raw, &message); err != nil {
		return PokemonMessage{}, err
	}
	return message, message.Validate()
}

// Validate checks required creature fields.
// Params: decoded creature message.
// Returns: error wrapping ErrMalformedEvent.
func (m PokemonMessage) Validate() error {
	switch {
	case strings.TrimSpace(string(m.EncounterID)) == "":
		return malformed("encounter_id is required")
	case m.PokemonID == nil:
		return malformed("pokemon_id is required")
	case m.Latitude == nil || m.Longitude == nil:
		return malformed("latitude and longitude are required")
	case m.DisappearTime == nil:
		return malformed("disappear_time is required")
	}
	return nil
}

// DecodeRaid decodes and validates a raid/egg message body.
// Params: raw message JSON.
// Returns: message or error wrapping ErrMalformedEvent.
func DecodeRaid(raw json.RawMessage) (RaidMessage, error) {
	var message RaidMessage
	if err := decodeMessage(raw, &message); err != nil {
		return RaidMessage{}, err
	}
	return message, message.Validate()
}

// Validate checks required raid fields.
// Params: decoded raid message.
// Returns: error wrapping ErrMalformedEvent.
func (m RaidMessage) Validate() error {
	switch {
	case strings.TrimSpace(string(m.GymID)) == "":
		return malformed("gym_id is required")
	case m.Start == nil || m.End == nil:
		return malformed("start and end are required")
	case m.Latitude == nil || m.Longitude == nil:
		return malformed("latitude and longitude are required")
	}
	return nil
}

// IsEgg reports whether the raid boss is not hatched yet.
func (m RaidMessage) IsEgg() bool {
	return m.PokemonID == nil
}

// IdentityKey returns the gym+start dedup key.
func (m RaidMessage) IdentityKey() string {
	var start int64
	if m.Start != nil {
		start = *m.Start
	}
	return string(m.GymID) + strconv.FormatInt(start, 10)
}

// DecodeGymDetails decodes and validates a gym roster message body.
// Params: raw message JSON.
// Returns: message or error wrapping ErrMalformedEvent.
func DecodeGymDetails(raw json.RawMessage) (GymDetailsMessage, error) {
	var message GymDetailsMessage
	if err := decodeMessage(raw, &message); err != nil {
		return GymDetailsMessage{}, err
	}
	return message, message.Validate()
}

// Validate checks required gym fields.
// Params: decoded gym message.
// Returns: error wrapping ErrMalformedEvent.
func (m GymDetailsMessage) Validate() error {
	switch {
	case strings.TrimSpace(string(m.ID)) == "":
		return malformed("id is required")
	case m.Latitude == nil || m.Longitude == nil:
		return malformed("latitude and longitude are required")
	}
	return nil
}

// TrainerNames lists roster trainers in message order.
func (m GymDetailsMessage) TrainerNames() []string {
	names := make([]string, 0, len(m.Pokemon))
	for _, member := range m.Pokemon {
		names = append(names, member.TrainerName)
	}
	return names
}

func decodeMessage(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return malformed("message is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, reason)
}
