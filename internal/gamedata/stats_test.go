package gamedata

import (
	"errors"
	"math"
	"testing"
	"testing/fstest"
)

func mustDefault(t *testing.T) *Lookup {
	t.Helper()
	lookup, err := LoadDefault()
	if err != nil {
		t.Fatalf("load default game data: %v", err)
	}
	return lookup
}

func TestQualityPercentBounds(t *testing.T) {
	t.Parallel()

	for a := 0; a <= 15; a++ {
		for d := 0; d <= 15; d++ {
			for s := 0; s <= 15; s++ {
				got := QualityPercent(a, d, s)
				want := float64(a+d+s) / 45 * 100
				if math.Abs(got-want) > 1e-9 {
					t.Fatalf("quality(%d,%d,%d) = %v, want %v", a, d, s, got, want)
				}
				if got < 0 || got > 100 {
					t.Fatalf("quality(%d,%d,%d) = %v out of range", a, d, s, got)
				}
			}
		}
	}
	if QualityPercent(15, 15, 15) != 100 {
		t.Fatalf("expected perfect rolls to be 100")
	}
	if QualityPercent(0, 0, 0) != 0 {
		t.Fatalf("expected zero rolls to be 0")
	}
}

func TestCombatPowerAndHitPoints(t *testing.T) {
	t.Parallel()

	lookup := mustDefault(t)
	cases := []struct {
		name    string
		species int
		level   float64
		a, d, s int
		wantCP  int
		wantHP  int
	}{
		{name: "bulbasaur level 1", species: 1, level: 1, wantCP: 10, wantHP: 8},
		{name: "dragonite level 39 perfect", species: 149, level: 39, a: 15, d: 15, s: 15, wantCP: 3530, wantHP: 154},
		{name: "snorlax level 12", species: 143, level: 12, a: 0, d: 0, s: 14, wantHP: 154, wantCP: -1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if tc.wantCP >= 0 {
				cp, err := lookup.CombatPower(tc.species, tc.level, tc.a, tc.d, tc.s)
				if err != nil {
					t.Fatalf("combat power: %v", err)
				}
				if cp != tc.wantCP {
					t.Fatalf("expected cp %d, got %d", tc.wantCP, cp)
				}
				again, _ := lookup.CombatPower(tc.species, tc.level, tc.a, tc.d, tc.s)
				if again != cp {
					t.Fatalf("combat power is not deterministic: %d != %d", again, cp)
				}
			}
			hp, err := lookup.HitPoints(tc.species, tc.level, tc.s)
			if err != nil {
				t.Fatalf("hit points: %v", err)
			}
			if hp != tc.wantHP {
				t.Fatalf("expected hp %d, got %d", tc.wantHP, hp)
			}
		})
	}
}

func TestCombatPowerErrors(t *testing.T) {
	t.Parallel()

	lookup := mustDefault(t)
	if _, err := lookup.CombatPower(9999, 20, 1, 1, 1); !errors.Is(err, ErrUnknownSpecies) {
		t.Fatalf("expected ErrUnknownSpecies, got %v", err)
	}
	// Named but without a stat row.
	if _, err := lookup.CombatPower(11, 20, 1, 1, 1); !errors.Is(err, ErrUnknownSpecies) {
		t.Fatalf("expected ErrUnknownSpecies for stat-less row, got %v", err)
	}
	if _, err := lookup.CombatPower(1, 41, 1, 1, 1); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
	if _, err := lookup.HitPoints(1, 0.5, 1); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel for hp, got %v", err)
	}
}

func TestLevelFromMultiplierIsLeftInverse(t *testing.T) {
	t.Parallel()

	lookup := mustDefault(t)
	for level := 1; level <= 30; level++ {
		multiplier, err := lookup.Multiplier(float64(level))
		if err != nil {
			t.Fatalf("multiplier for %d: %v", level, err)
		}
		if got := lookup.LevelFromMultiplier(multiplier); got != float64(level) {
			t.Fatalf("level_from_multiplier(%v) = %v, want %d", multiplier, got, level)
		}
	}
	if got := lookup.LevelFromMultiplier(0.5974000096321106); got != 20 {
		t.Fatalf("expected float noise to resolve to 20, got %v", got)
	}
	if got := lookup.LevelFromMultiplier(0.12345); got != -1 {
		t.Fatalf("expected -1 for unknown multiplier, got %v", got)
	}
}

func TestLookupNamesDegradeToUnknown(t *testing.T) {
	t.Parallel()

	lookup := mustDefault(t)
	if got := lookup.PokemonName(149); got != "Dragonite" {
		t.Fatalf("unexpected species name %q", got)
	}
	if got := lookup.MoveName(219); got != "Quick Attack" {
		t.Fatalf("unexpected move name %q", got)
	}
	if got := lookup.MoveName(125); got != "Swift" {
		t.Fatalf("unexpected move name %q", got)
	}
	if got := lookup.PokemonName(100000); got != UnknownName {
		t.Fatalf("expected unknown species name, got %q", got)
	}
	if got := lookup.MoveName(-3); got != UnknownName {
		t.Fatalf("expected unknown move name, got %q", got)
	}
}

func TestLoadFromCustomFS(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"pokemon.json": {Data: []byte(`{"7": {"name": "Squirtle", "attack": 94, "defense": 122, "stamina": 88}}`)},
		"moves.json":   {Data: []byte(`{"230": "Water Gun"}`)},
	}
	lookup, err := Load(fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if lookup.PokemonName(1) != UnknownName {
		t.Fatalf("custom tables must not include embedded rows")
	}
	if lookup.MoveName(230) != "Water Gun" {
		t.Fatalf("unexpected move name")
	}

	_, err = Load(fstest.MapFS{"pokemon.json": {Data: []byte(`{"x": {}}`)}, "moves.json": {Data: []byte(`{}`)}})
	if err == nil {
		t.Fatalf("expected invalid species id error")
	}
}
