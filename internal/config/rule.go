package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
)

// BoundKeys are sighting attributes filterable by min_<key>/max_<key>.
var BoundKeys = []string{"lat", "lon", "id", "iv", "attack", "defense", "stamina", "level"}

// MoveSet is one accepted move pair; a nil slot accepts any move.
type MoveSet struct {
	Move1 *string
	Move2 *string
}

// Rule is one AND-combined constraint set.
// Params: absent fields never exclude a sighting.
// Returns: matcher input, immutable after load.
type Rule struct {
	Name      *string
	Min       map[string]float64
	Max       map[string]float64
	MinCP     map[int]int
	MaxCP     map[int]int
	MinHP     map[int]int
	MaxHP     map[int]int
	Level30CP *int
	MaxDist   *float64
	Moves     []MoveSet
	HasMoves  bool
	Geofence  string
	Fence     *Geofence
}

// Empty reports whether rule carries no constraint.
func (r Rule) Empty() bool {
	return r.Name == nil && len(r.Min) == 0 && len(r.Max) == 0 &&
		r.MinCP == nil && r.MaxCP == nil && r.MinHP == nil && r.MaxHP == nil &&
		r.Level30CP == nil && r.MaxDist == nil && !r.HasMoves && r.Geofence == ""
}

// Clone returns a deep copy sharing only the immutable geofence.
func (r Rule) Clone() Rule {
	out := r
	if r.Name != nil {
		name := *r.Name
		out.Name = &name
	}
	out.Min = maps.Clone(r.Min)
	out.Max = maps.Clone(r.Max)
	out.MinCP = maps.Clone(r.MinCP)
	out.MaxCP = maps.Clone(r.MaxCP)
	out.MinHP = maps.Clone(r.MinHP)
	out.MaxHP = maps.Clone(r.MaxHP)
	if r.Level30CP != nil {
		v := *r.Level30CP
		out.Level30CP = &v
	}
	if r.MaxDist != nil {
		v := *r.MaxDist
		out.MaxDist = &v
	}
	if r.Moves != nil {
		out.Moves = append([]MoveSet(nil), r.Moves...)
	}
	return out
}

// inheritDefaults copies each default key the rule does not define.
// Params: rule-set level defaults.
// Returns: none; idempotent.
func (r *Rule) inheritDefaults(defaults Rule) {
	for _, key := range []string{"id", "iv", "attack", "defense", "stamina", "lat", "lon"} {
		if v, ok := defaults.Min[key]; ok {
			if _, has := r.Min[key]; !has {
				if r.Min == nil {
					r.Min = map[string]float64{}
				}
				r.Min[key] = v
			}
		}
		if v, ok := defaults.Max[key]; ok {
			if _, has := r.Max[key]; !has {
				if r.Max == nil {
					r.Max = map[string]float64{}
				}
				r.Max[key] = v
			}
		}
	}
	d := defaults.Clone()
	if r.Name == nil {
		r.Name = d.Name
	}
	if r.MinCP == nil {
		r.MinCP = d.MinCP
	}
	if r.MaxCP == nil {
		r.MaxCP = d.MaxCP
	}
	if r.MinHP == nil {
		r.MinHP = d.MinHP
	}
	if r.MaxHP == nil {
		r.MaxHP = d.MaxHP
	}
	if r.Level30CP == nil {
		r.Level30CP = d.Level30CP
	}
	if r.MaxDist == nil {
		r.MaxDist = d.MaxDist
	}
	if !r.HasMoves && d.HasMoves {
		r.Moves = d.Moves
		r.HasMoves = true
	}
	if r.Geofence == "" {
		r.Geofence = d.Geofence
		r.Fence = d.Fence
	}
}

// parseRule converts one decoded rule object.
// Params: generic map from TOML/JSON decode; extra lists keys owned by the caller.
// Returns: typed rule or error naming the offending key.
func parseRule(fields map[string]any, extra map[string]struct{}) (Rule, error) {
	var rule Rule
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := fields[key]
		if _, skip := extra[key]; skip {
			continue
		}
		if value == nil {
			continue
		}
		var err error
		switch {
		case key == "name":
			var name string
			name, err = asString(value)
			rule.Name = &name
		case key == "max_dist":
			var dist float64
			dist, err = asFloat(value)
			rule.MaxDist = &dist
		case key == "geofence":
			rule.Geofence, err = asString(value)
		case key == "level30cp":
			var cp float64
			cp, err = asFloat(value)
			v := int(cp)
			rule.Level30CP = &v
		case key == "moves":
			rule.Moves, err = asMoveSets(value)
			rule.HasMoves = true
		case key == "min_cp":
			rule.MinCP, err = asLevelMap(value)
		case key == "max_cp":
			rule.MaxCP, err = asLevelMap(value)
		case key == "min_hp":
			rule.MinHP, err = asLevelMap(value)
		case key == "max_hp":
			rule.MaxHP, err = asLevelMap(value)
		case strings.HasPrefix(key, "min_") && isBoundKey(key[4:]):
			var v float64
			v, err = asFloat(value)
			if rule.Min == nil {
				rule.Min = map[string]float64{}
			}
			rule.Min[key[4:]] = v
		case strings.HasPrefix(key, "max_") && isBoundKey(key[4:]):
			var v float64
			v, err = asFloat(value)
			if rule.Max == nil {
				rule.Max = map[string]float64{}
			}
			rule.Max[key[4:]] = v
		default:
			return Rule{}, fmt.Errorf("unknown key %q", key)
		}
		if err != nil {
			return Rule{}, fmt.Errorf("%s: %w", key, err)
		}
	}
	return rule, nil
}

func isBoundKey(key string) bool {
	for _, candidate := range BoundKeys {
		if candidate == key {
			return true
		}
	}
	return false
}

func asFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

func asString(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", value)
	}
	return s, nil
}

// asLevelMap parses `{"30": 2000}` into level -> threshold.
func asLevelMap(value any) (map[int]int, error) {
	table, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected level table, got %T", value)
	}
	out := make(map[int]int, len(table))
	for rawLevel, rawThreshold := range table {
		level, err := strconv.Atoi(strings.TrimSpace(rawLevel))
		if err != nil {
			return nil, fmt.Errorf("level %q is not an integer", rawLevel)
		}
		threshold, err := asFloat(rawThreshold)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", level, err)
		}
		out[level] = int(threshold)
	}
	return out, nil
}

func asMoveSets(value any) ([]MoveSet, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list of move pairs, got %T", value)
	}
	out := make([]MoveSet, 0, len(list))
	for i, item := range list {
		pair, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("[%d]: expected move pair object, got %T", i, item)
		}
		var set MoveSet
		for key, raw := range pair {
			if raw == nil {
				continue
			}
			name, err := asString(raw)
			if err != nil {
				return nil, fmt.Errorf("[%d].%s: %w", i, key, err)
			}
			switch key {
			case "move_1":
				set.Move1 = &name
			case "move_2":
				set.Move2 = &name
			default:
				return nil, fmt.Errorf("[%d]: unknown key %q", i, key)
			}
		}
		out = append(out, set)
	}
	return out, nil
}

func asStringList(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := asString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", value)
	}
}

func asIntList(value any) ([]int, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected number list, got %T", value)
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		v, err := asFloat(item)
		if err != nil {
			return nil, err
		}
		out = append(out, int(v))
	}
	return out, nil
}
