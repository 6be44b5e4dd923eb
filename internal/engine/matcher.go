package engine

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/gamedata"
)

const (
	missingMinValue = -1
	missingMaxValue = 99999
)

// MatchResult is the outcome of one rule against one sighting.
type MatchResult struct {
	Matched bool
	Fired   []string
}

// Matcher evaluates rules as a pure function of sighting, rule and anchor.
type Matcher struct {
	lookup *gamedata.Lookup
}

// NewMatcher creates matcher bound to read-only game data.
func NewMatcher(lookup *gamedata.Lookup) Matcher {
	return Matcher{lookup: lookup}
}

// Match checks every constraint of rule in a fixed order.
// Params: sighting, rule and optional anchor (nil when unset).
// Returns: match flag and names of constraints that passed before the decision.
func (m Matcher) Match(s domain.Sighting, rule config.Rule, anchor *orb.Point) MatchResult {
	fired := make([]string, 0, 4)
	fail := MatchResult{}

	if rule.Name != nil {
		if *rule.Name != s.Name {
			return fail
		}
		fired = append(fired, "name")
	}

	for _, key := range config.BoundKeys {
		if key == "id" && s.IsEgg() {
			continue
		}
		var ok bool
		if fired, ok = checkBounds(key, rule, s, fired); !ok {
			return fail
		}
	}

	for _, check := range []struct {
		name      string
		table     map[int]int
		hitPoints bool
		atMost    bool
	}{
		{name: "min_cp", table: rule.MinCP},
		{name: "max_cp", table: rule.MaxCP, atMost: true},
		{name: "level30cp", table: level30Table(rule.Level30CP)},
		{name: "min_hp", table: rule.MinHP, hitPoints: true},
		{name: "max_hp", table: rule.MaxHP, hitPoints: true, atMost: true},
	} {
		if check.table == nil {
			continue
		}
		if !m.checkLevels(s, check.table, check.hitPoints, check.atMost) {
			return fail
		}
		fired = append(fired, check.name)
	}

	if rule.HasMoves && !s.IsEgg() {
		if !matchMoves(rule.Moves, s.Move1, s.Move2) {
			return fail
		}
		fired = append(fired, "moves")
	}

	if rule.MaxDist != nil {
		if anchor == nil {
			return fail
		}
		if Distance(*anchor, s.Lat, s.Lon) > *rule.MaxDist {
			return fail
		}
		fired = append(fired, "max_dist")
	}

	if rule.Geofence != "" {
		if !rule.Fence.Contains(s.Lat, s.Lon) {
			return fail
		}
		fired = append(fired, "geofence")
	}

	if s.IsEgg() {
		fired = append(fired, "egg")
	}
	return MatchResult{Matched: true, Fired: fired}
}

// FirstMatch returns result of the first rule in set that matches.
func (m Matcher) FirstMatch(s domain.Sighting, set config.RuleSet, anchor *orb.Point) (MatchResult, bool) {
	for _, rule := range set.Rules {
		if result := m.Match(s, rule, anchor); result.Matched {
			return result, true
		}
	}
	return MatchResult{}, false
}

// IsIncluded reports whether any rule of set matches the sighting.
func (m Matcher) IsIncluded(s domain.Sighting, set config.RuleSet, anchor *orb.Point) bool {
	_, ok := m.FirstMatch(s, set, anchor)
	return ok
}

// Distance returns haversine distance in meters between anchor and coordinate.
func Distance(anchor orb.Point, lat, lon float64) float64 {
	return geo.DistanceHaversine(anchor, orb.Point{lon, lat})
}

func checkBounds(key string, rule config.Rule, s domain.Sighting, fired []string) ([]string, bool) {
	value, present := s.Numeric(key)
	if lower, ok := rule.Min[key]; ok {
		actual := value
		if !present {
			actual = missingMinValue
		}
		if actual < lower {
			return fired, false
		}
		fired = append(fired, "min_"+key)
	}
	if upper, ok := rule.Max[key]; ok {
		actual := value
		if !present {
			actual = missingMaxValue
		}
		if actual > upper {
			return fired, false
		}
		fired = append(fired, "max_"+key)
	}
	return fired, true
}

// checkLevels requires every configured level to pass its threshold.
func (m Matcher) checkLevels(s domain.Sighting, table map[int]int, hitPoints, atMost bool) bool {
	if s.Rolls == nil || m.lookup == nil {
		return false
	}
	for level, threshold := range table {
		var value int
		var err error
		if hitPoints {
			value, err = m.lookup.HitPoints(s.PokemonID, float64(level), s.Rolls.Stamina)
		} else {
			value, err = m.lookup.CombatPower(s.PokemonID, float64(level), s.Rolls.Attack, s.Rolls.Defense, s.Rolls.Stamina)
		}
		if err != nil {
			return false
		}
		if atMost && value > threshold {
			return false
		}
		if !atMost && value < threshold {
			return false
		}
	}
	return true
}

func level30Table(cp *int) map[int]int {
	if cp == nil {
		return nil
	}
	return map[int]int{30: *cp}
}

func matchMoves(sets []config.MoveSet, move1, move2 string) bool {
	for _, set := range sets {
		if set.Move1 != nil && *set.Move1 != move1 {
			continue
		}
		if set.Move2 != nil && *set.Move2 != move2 {
			continue
		}
		return true
	}
	return false
}
