package enrich

import (
	"context"
	"time"

	"github.com/trew/PokemonGoMapNotifier/internal/domain"
)

// UnknownGymName is used when a raid gym has no roster snapshot yet.
const UnknownGymName = "(Unknown)"

// Builder turns matched sightings into channel payloads.
// Params: optional static-map key, geocoder and clock.
// Returns: enriched alert payloads; enrichment never fails.
type Builder struct {
	googleKey string
	geocoder  Geocoder
	now       func() time.Time
	loc       *time.Location
}

// NewBuilder creates alert payload builder.
func NewBuilder(googleKey string, geocoder Geocoder, now func() time.Time, loc *time.Location) *Builder {
	if geocoder == nil {
		geocoder = NopGeocoder{}
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Builder{googleKey: googleKey, geocoder: geocoder, now: now, loc: loc}
}

// Pokemon builds creature payload; optional attributes stay nil when unknown.
func (b *Builder) Pokemon(ctx context.Context, s domain.Sighting) domain.PokemonAlert {
	alert := domain.PokemonAlert{
		EncounterID: s.Key,
		ID:          s.PokemonID,
		Name:        s.Name,
		Lat:         s.Lat,
		Lon:         s.Lon,
		CP:          s.CP,
		Level:       s.Level,
		Form:        s.Form,
		Move1:       s.Move1,
		Move2:       s.Move2,
		DisappearAt: s.Expiry,
		Time:        ReadableTime(s.Expiry, b.loc),
		TimeLeft:    TimeLeft(s.Expiry, b.now()),
		GoogleMaps:  GoogleMapsURL(s.Lat, s.Lon),
		StaticMap:   StaticMapURL(s.Lat, s.Lon, b.googleKey),
		Gamepress:   GamepressURL(s.PokemonID),
		Icon:        IconURL(s.PokemonID),
		Sublocality: b.geocoder.Sublocality(ctx, s.Lat, s.Lon),
	}
	if s.Rolls != nil {
		attack, defense, stamina := s.Rolls.Attack, s.Rolls.Defense, s.Rolls.Stamina
		alert.Attack, alert.Defense, alert.Stamina = &attack, &defense, &stamina
		iv, _ := s.IV()
		alert.IV = &iv
	}
	return alert
}

// Raid builds raid or egg payload using last known gym name and team.
func (b *Builder) Raid(ctx context.Context, s domain.Sighting, gymName string, gymTeam int) domain.RaidAlert {
	if gymName == "" {
		gymName = UnknownGymName
	}
	now := b.now()
	alert := domain.RaidAlert{
		Egg:         s.IsEgg(),
		GymID:       s.GymID,
		GymName:     gymName,
		GymTeam:     gymTeam,
		Name:        s.Name,
		CP:          s.CP,
		Move1:       s.Move1,
		Move2:       s.Move2,
		Lat:         s.Lat,
		Lon:         s.Lon,
		SpawnAt:     s.Spawn,
		StartAt:     s.Start,
		EndAt:       s.End,
		Spawn:       ReadableTime(s.Spawn, b.loc),
		Start:       ReadableTime(s.Start, b.loc),
		End:         ReadableTime(s.End, b.loc),
		UntilStart:  TimeLeft(s.Start, now),
		UntilEnd:    TimeLeft(s.End, now),
		GoogleMaps:  GoogleMapsURL(s.Lat, s.Lon),
		StaticMap:   StaticMapURL(s.Lat, s.Lon, b.googleKey),
		Sublocality: b.geocoder.Sublocality(ctx, s.Lat, s.Lon),
	}
	if s.Level != nil {
		alert.Level = *s.Level
	}
	if s.IsEgg() {
		alert.Name = "Egg"
		alert.Icon = EggIconURL(alert.Level)
	} else {
		alert.ID = s.PokemonID
		alert.Gamepress = GamepressURL(s.PokemonID)
		alert.Icon = IconURL(s.PokemonID)
	}
	return alert
}

// Gym builds roster-change payload for one newly present trainer.
func (b *Builder) Gym(trainer string, message domain.GymDetailsMessage) domain.GymAlert {
	var lat, lon float64
	if message.Latitude != nil {
		lat = *message.Latitude
	}
	if message.Longitude != nil {
		lon = *message.Longitude
	}
	return domain.GymAlert{
		TrainerName: trainer,
		GymID:       string(message.ID),
		Name:        message.Name,
		Lat:         lat,
		Lon:         lon,
		Team:        message.Team,
		TeamName:    domain.TeamName(message.Team),
		GoogleMaps:  GoogleMapsURL(lat, lon),
		StaticMap:   StaticMapURL(lat, lon, b.googleKey),
	}
}
