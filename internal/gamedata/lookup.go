package gamedata

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// UnknownName is returned for species and move ids missing from the tables.
const UnknownName = "unknown"

const (
	pokemonFile = "pokemon.json"
	movesFile   = "moves.json"
)

var (
	// ErrUnknownSpecies indicates a species id without a base stat row.
	ErrUnknownSpecies = errors.New("unknown species")
	// ErrUnknownLevel indicates a level without a tabulated multiplier.
	ErrUnknownLevel = errors.New("unknown level")
)

//go:embed data/*.json
var embedded embed.FS

// BaseStats holds species base attack/defense/stamina.
type BaseStats struct {
	Attack  int
	Defense int
	Stamina int
}

// Species is one row of the species table.
type Species struct {
	Name  string
	Stats BaseStats
	// HasStats is false when the table only names the species.
	HasStats bool
}

// Lookup is a read-only view over species, move, and multiplier tables.
// Params: tables loaded once by Load/LoadDefault.
// Returns: lookup service shared by matcher and engine.
type Lookup struct {
	species     map[int]Species
	moves       map[int]string
	multipliers map[float64]float64
	levels      map[int64]float64
}

type rawSpecies struct {
	Name    string `json:"name"`
	Attack  *int   `json:"attack"`
	Defense *int   `json:"defense"`
	Stamina *int   `json:"stamina"`
}

// LoadDefault builds lookup from the tables compiled into the binary.
// Params: none.
// Returns: initialized lookup or decode error.
func LoadDefault() (*Lookup, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("open embedded game data: %w", err)
	}
	return Load(sub)
}

// LoadDir builds lookup from pokemon.json and moves.json inside dir.
// Params: directory path; empty path selects embedded tables.
// Returns: initialized lookup or read/decode error.
func LoadDir(dir string) (*Lookup, error) {
	if strings.TrimSpace(dir) == "" {
		return LoadDefault()
	}
	return Load(os.DirFS(dir))
}

// Load builds lookup from pokemon.json and moves.json in fsys.
// Params: filesystem rooted at the data directory.
// Returns: initialized lookup or read/decode error.
func Load(fsys fs.FS) (*Lookup, error) {
	rawPokemon, err := fs.ReadFile(fsys, pokemonFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pokemonFile, err)
	}
	var pokemon map[string]rawSpecies
	if err := json.Unmarshal(rawPokemon, &pokemon); err != nil {
		return nil, fmt.Errorf("decode %s: %w", pokemonFile, err)
	}

	rawMoves, err := fs.ReadFile(fsys, movesFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", movesFile, err)
	}
	var moves map[string]string
	if err := json.Unmarshal(rawMoves, &moves); err != nil {
		return nil, fmt.Errorf("decode %s: %w", movesFile, err)
	}

	lookup := &Lookup{
		species:     make(map[int]Species, len(pokemon)),
		moves:       make(map[int]string, len(moves)),
		multipliers: make(map[float64]float64, len(cpMultipliers)),
		levels:      make(map[int64]float64, len(cpMultipliers)),
	}
	for key, row := range pokemon {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid species id %q", pokemonFile, key)
		}
		entry := Species{Name: row.Name}
		if row.Attack != nil && row.Defense != nil && row.Stamina != nil {
			entry.HasStats = true
			entry.Stats = BaseStats{Attack: *row.Attack, Defense: *row.Defense, Stamina: *row.Stamina}
		}
		lookup.species[id] = entry
	}
	for key, name := range moves {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid move id %q", movesFile, key)
		}
		lookup.moves[id] = name
	}
	for level, multiplier := range cpMultipliers {
		lookup.multipliers[level] = multiplier
		lookup.levels[multiplierKey(multiplier)] = level
	}
	return lookup, nil
}

// PokemonName returns species display name.
// Params: species id.
// Returns: name or UnknownName.
func (l *Lookup) PokemonName(id int) string {
	if entry, ok := l.species[id]; ok && entry.Name != "" {
		return entry.Name
	}
	return UnknownName
}

// MoveName returns move display name.
// Params: move id.
// Returns: name or UnknownName.
func (l *Lookup) MoveName(id int) string {
	if name, ok := l.moves[id]; ok {
		return name
	}
	return UnknownName
}

// BaseStats returns species base stats.
// Params: species id.
// Returns: stats or ErrUnknownSpecies.
func (l *Lookup) BaseStats(id int) (BaseStats, error) {
	entry, ok := l.species[id]
	if !ok || !entry.HasStats {
		return BaseStats{}, fmt.Errorf("species %d: %w", id, ErrUnknownSpecies)
	}
	return entry.Stats, nil
}

// Multiplier returns the combat-power multiplier for level.
// Params: level in half-level steps.
// Returns: multiplier or ErrUnknownLevel.
func (l *Lookup) Multiplier(level float64) (float64, error) {
	multiplier, ok := l.multipliers[level]
	if !ok {
		return 0, fmt.Errorf("level %v: %w", level, ErrUnknownLevel)
	}
	return multiplier, nil
}
