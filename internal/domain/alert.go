package domain

import "time"

// AlertKind is the notification family delivered to channels.
type AlertKind string

const (
	// AlertPokemon carries a PokemonAlert.
	AlertPokemon AlertKind = "pokemon"
	// AlertRaid carries a RaidAlert for a hatched boss.
	AlertRaid AlertKind = "raid"
	// AlertEgg carries a RaidAlert for an egg.
	AlertEgg AlertKind = "egg"
	// AlertGym carries a GymAlert.
	AlertGym AlertKind = "gym"
)

// PokemonAlert is the enriched creature payload handed to channels.
// Optional fields are omitted from JSON when the sighting lacks them.
type PokemonAlert struct {
	EncounterID string    `json:"encounter_id"`
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	CP          *int      `json:"cp,omitempty"`
	Level       *int      `json:"level,omitempty"`
	Form        string    `json:"form,omitempty"`
	Attack      *int      `json:"attack,omitempty"`
	Defense     *int      `json:"defense,omitempty"`
	Stamina     *int      `json:"stamina,omitempty"`
	IV          *float64  `json:"iv,omitempty"`
	Move1       string    `json:"move_1,omitempty"`
	Move2       string    `json:"move_2,omitempty"`
	DisappearAt time.Time `json:"disappear_at"`
	Time        string    `json:"time"`
	TimeLeft    string    `json:"time_left"`
	GoogleMaps  string    `json:"google_maps"`
	StaticMap   string    `json:"static_google_maps"`
	Gamepress   string    `json:"gamepress"`
	Icon        string    `json:"icon"`
	Sublocality string    `json:"sublocality,omitempty"`
	Distance    *int      `json:"distance,omitempty"`
	Matched     []string  `json:"matched,omitempty"`
}

// RaidAlert is the enriched raid/egg payload handed to channels.
type RaidAlert struct {
	Egg          bool      `json:"egg"`
	GymID        string    `json:"gym_id"`
	GymName      string    `json:"gym_name"`
	GymTeam      int       `json:"gym_team"`
	Level        int       `json:"level"`
	ID           int       `json:"id,omitempty"`
	Name         string    `json:"name"`
	CP           *int      `json:"cp,omitempty"`
	Move1        string    `json:"move_1,omitempty"`
	Move2        string    `json:"move_2,omitempty"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	SpawnAt      time.Time `json:"spawn_at"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	Spawn        string    `json:"spawn"`
	Start        string    `json:"start"`
	End          string    `json:"end"`
	UntilStart   string    `json:"time_until_start"`
	UntilEnd     string    `json:"time_until_end"`
	GoogleMaps   string    `json:"google_maps"`
	StaticMap    string    `json:"static_google_maps"`
	Gamepress    string    `json:"gamepress,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	Sublocality  string    `json:"sublocality,omitempty"`
	Distance     *int      `json:"distance,omitempty"`
	Matched      []string  `json:"matched,omitempty"`
}

// GymAlert is the roster-change payload handed to channels.
type GymAlert struct {
	TrainerName string  `json:"trainer_name"`
	GymID       string  `json:"gym_id"`
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Team        int     `json:"team"`
	TeamName    string  `json:"team_name,omitempty"`
	GoogleMaps  string  `json:"google_maps"`
	StaticMap   string  `json:"static_google_maps"`
}

// Alert is one tagged notification for one target.
// Params: Kind selects which payload pointer is set.
// Returns: dispatcher input.
type Alert struct {
	Kind    AlertKind
	Target  string
	Pokemon *PokemonAlert
	Raid    *RaidAlert
	Gym     *GymAlert
}

// Subject returns a short label for logs.
func (a Alert) Subject() string {
	switch a.Kind {
	case AlertPokemon:
		if a.Pokemon != nil {
			return a.Pokemon.Name
		}
	case AlertRaid, AlertEgg:
		if a.Raid != nil {
			return a.Raid.Name + "@" + a.Raid.GymName
		}
	case AlertGym:
		if a.Gym != nil {
			return a.Gym.TrainerName + "@" + a.Gym.Name
		}
	}
	return string(a.Kind)
}

// TeamName maps team number to display name.
// Params: team number from gym messages.
// Returns: team name or empty string for uncontested gyms.
func TeamName(team int) string {
	switch team {
	case 1:
		return "Mystic"
	case 2:
		return "Valor"
	case 3:
		return "Instinct"
	default:
		return ""
	}
}
