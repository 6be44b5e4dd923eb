package domain

import "time"

// SightingKind separates the three dedup families.
type SightingKind string

const (
	// KindCreature is a wild creature sighting.
	KindCreature SightingKind = "pokemon"
	// KindRaid is a hatched raid boss.
	KindRaid SightingKind = "raid"
	// KindEgg is a raid egg that has not hatched yet.
	KindEgg SightingKind = "egg"
)

// Rolls holds the three 0-15 sub-attribute rolls.
type Rolls struct {
	Attack  int
	Defense int
	Stamina int
}

// Sighting is one transient creature/raid/egg observation.
// Params: fields decoded from one inbound message.
// Returns: matcher input; discarded after dispatch.
type Sighting struct {
	Kind      SightingKind
	Key       string
	PokemonID int
	Name      string
	Lat       float64
	Lon       float64
	CP        *int
	Level     *int
	Rolls     *Rolls
	Move1     string
	Move2     string
	Form      string
	Expiry    time.Time

	GymID string
	Spawn time.Time
	Start time.Time
	End   time.Time
}

// IsEgg reports whether sighting is an unhatched raid egg.
func (s Sighting) IsEgg() bool {
	return s.Kind == KindEgg
}

// IV returns the quality percentage when all rolls are known.
func (s Sighting) IV() (float64, bool) {
	if s.Rolls == nil {
		return 0, false
	}
	return float64(s.Rolls.Attack+s.Rolls.Defense+s.Rolls.Stamina) * 100 / 45, true
}

// Numeric returns a range-filterable attribute by rule key.
// Params: one of lat, lon, id, iv, attack, defense, stamina, level, cp.
// Returns: value and presence flag.
func (s Sighting) Numeric(key string) (float64, bool) {
	switch key {
	case "lat":
		return s.Lat, true
	case "lon":
		return s.Lon, true
	case "id":
		if s.IsEgg() {
			return 0, false
		}
		return float64(s.PokemonID), true
	case "iv":
		return s.IV()
	case "attack":
		if s.Rolls == nil {
			return 0, false
		}
		return float64(s.Rolls.Attack), true
	case "defense":
		if s.Rolls == nil {
			return 0, false
		}
		return float64(s.Rolls.Defense), true
	case "stamina":
		if s.Rolls == nil {
			return 0, false
		}
		return float64(s.Rolls.Stamina), true
	case "level":
		if s.Level == nil {
			return 0, false
		}
		return float64(*s.Level), true
	case "cp":
		if s.CP == nil {
			return 0, false
		}
		return float64(*s.CP), true
	default:
		return 0, false
	}
}
