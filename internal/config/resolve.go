package config

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// RuleSet is a named OR-combined list of fully resolved rules.
type RuleSet struct {
	Name   string
	Rules  []Rule
	Levels []int
}

// rawRuleSet is one parsed rule-set before reference expansion.
type rawRuleSet struct {
	defaults Rule
	rules    []Rule
	refs     []string
	levels   []int
}

var ruleSetStructureKeys = map[string]struct{}{
	"pokemons":      {},
	"pokemons_refs": {},
	"refs":          {},
	"levels":        {},
}

// resolve builds rule-sets, targets and reverse indexes on cfg.
// Params: config with geofences and endpoints loaded, raw document.
// Returns: ConfigurationError on any unresolvable reference.
func resolve(cfg *Config, doc document) error {
	for name := range doc.RaidIncludes {
		if _, clash := doc.Includes[name]; clash {
			return configErrorf("rule-set name %q is used by both includes and raid_includes", name)
		}
	}

	creatureRaw, err := parseRuleSets("includes", doc.Includes, cfg.Geofences, false)
	if err != nil {
		return err
	}
	raidRaw, err := parseRuleSets("raid_includes", doc.RaidIncludes, cfg.Geofences, true)
	if err != nil {
		return err
	}
	creatureSets, err := expandAll("includes", creatureRaw)
	if err != nil {
		return err
	}
	raidSets, err := expandAll("raid_includes", raidRaw)
	if err != nil {
		return err
	}

	cfg.Targets = make(map[string]Target)
	cfg.CreatureIndex = make(map[string][]string)
	cfg.RaidIndex = make(map[string][]string)
	cfg.RuleSets = make(map[string]RuleSet)
	cfg.RaidSets = make(map[string]RuleSet)

	targetNames := make([]string, 0, len(doc.NotificationSettings))
	for name := range doc.NotificationSettings {
		targetNames = append(targetNames, name)
	}
	sort.Strings(targetNames)

	for _, name := range targetNames {
		raw := doc.NotificationSettings[name]
		if raw.Enabled != nil && !*raw.Enabled {
			continue
		}
		target := Target{
			Name:      name,
			Includes:  dedupeNames(raw.Includes),
			Raids:     dedupeNames(append(append([]string(nil), raw.Raids...), raw.RaidIncludes...)),
			Endpoints: dedupeNames(raw.Endpoints),
			Gym:       raw.Gym,
		}
		if len(target.Endpoints) == 0 {
			target.Endpoints = []string{EndpointSimple}
		}
		for _, endpoint := range target.Endpoints {
			if _, ok := cfg.Endpoints[endpoint]; !ok {
				return configErrorf("notification_settings.%s references unknown endpoint %q", name, endpoint)
			}
		}
		for _, include := range target.Includes {
			set, ok := creatureSets[include]
			if !ok {
				return configErrorf("notification_settings.%s references unknown include %q", name, include)
			}
			cfg.RuleSets[include] = set
			cfg.CreatureIndex[include] = append(cfg.CreatureIndex[include], name)
		}
		for _, include := range target.Raids {
			set, ok := raidSets[include]
			if !ok {
				return configErrorf("notification_settings.%s references unknown raid include %q", name, include)
			}
			cfg.RaidSets[include] = set
			cfg.RaidIndex[include] = append(cfg.RaidIndex[include], name)
		}
		cfg.Targets[name] = target
	}

	if len(cfg.RuleSets) == 0 && len(cfg.RaidSets) == 0 {
		return configErrorf("no includes configured")
	}
	return nil
}

// parseRuleSets converts raw rule-set bodies of one section.
// Params: section name, decoded bodies, geofence table, whether `levels` is allowed.
// Returns: parsed rule-sets keyed by name.
func parseRuleSets(section string, bodies map[string]map[string]any, fences map[string]*Geofence, allowLevels bool) (map[string]rawRuleSet, error) {
	out := make(map[string]rawRuleSet, len(bodies))
	for name, body := range bodies {
		path := section + "." + name
		defaults, err := parseRule(body, ruleSetStructureKeys)
		if err != nil {
			return nil, &ConfigurationError{Reason: path, Err: err}
		}
		if err := bindFence(&defaults, fences); err != nil {
			return nil, &ConfigurationError{Reason: path, Err: err}
		}
		set := rawRuleSet{defaults: defaults}

		if rawRules, ok := body["pokemons"]; ok && rawRules != nil {
			list, ok := rawRules.([]any)
			if !ok {
				return nil, configErrorf("%s.pokemons must be a list", path)
			}
			for i, item := range list {
				fields, ok := item.(map[string]any)
				if !ok {
					return nil, configErrorf("%s.pokemons[%d] must be an object", path, i)
				}
				rule, err := parseRule(fields, nil)
				if err != nil {
					return nil, &ConfigurationError{Reason: fmt.Sprintf("%s.pokemons[%d]", path, i), Err: err}
				}
				if err := bindFence(&rule, fences); err != nil {
					return nil, &ConfigurationError{Reason: fmt.Sprintf("%s.pokemons[%d]", path, i), Err: err}
				}
				set.rules = append(set.rules, rule)
			}
		}
		for _, key := range []string{"pokemons_refs", "refs"} {
			refs, err := asStringList(body[key])
			if err != nil {
				return nil, &ConfigurationError{Reason: path + "." + key, Err: err}
			}
			set.refs = append(set.refs, refs...)
		}
		if rawLevels, ok := body["levels"]; ok && rawLevels != nil {
			if !allowLevels {
				return nil, configErrorf("%s.levels is only supported in raid_includes", path)
			}
			levels, err := asIntList(rawLevels)
			if err != nil {
				return nil, &ConfigurationError{Reason: path + ".levels", Err: err}
			}
			set.levels = levels
		}
		out[name] = set
	}
	return out, nil
}

func bindFence(rule *Rule, fences map[string]*Geofence) error {
	if rule.Geofence == "" {
		return nil
	}
	fence, ok := fences[rule.Geofence]
	if !ok {
		return fmt.Errorf("unknown geofence %q", rule.Geofence)
	}
	rule.Fence = fence
	return nil
}

// expander resolves references depth-first with cycle detection.
type expander struct {
	section  string
	raw      map[string]rawRuleSet
	done     map[string][]Rule
	visiting map[string]bool
}

func expandAll(section string, raw map[string]rawRuleSet) (map[string]RuleSet, error) {
	e := &expander{
		section:  section,
		raw:      raw,
		done:     make(map[string][]Rule, len(raw)),
		visiting: make(map[string]bool),
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]RuleSet, len(raw))
	for _, name := range names {
		rules, err := e.expand(name, nil)
		if err != nil {
			return nil, err
		}
		out[name] = RuleSet{Name: name, Rules: rules, Levels: slices.Clone(raw[name].levels)}
	}
	return out, nil
}

// expand returns own rules with set defaults applied, followed by deep
// copies of every referenced set's resolved rules. Referenced rules keep
// exactly the constraints their own set gave them.
func (e *expander) expand(name string, chain []string) ([]Rule, error) {
	if rules, ok := e.done[name]; ok {
		return rules, nil
	}
	chain = append(chain, name)
	if e.visiting[name] {
		return nil, configErrorf("%s reference cycle: %s", e.section, strings.Join(chain, " -> "))
	}
	set, ok := e.raw[name]
	if !ok {
		return nil, configErrorf("%s.%s references unknown rule-set %q", e.section, chain[len(chain)-2], name)
	}
	e.visiting[name] = true
	defer delete(e.visiting, name)

	rules := make([]Rule, 0, len(set.rules)+len(set.levels))
	for _, rule := range set.rules {
		own := rule.Clone()
		own.inheritDefaults(set.defaults)
		rules = append(rules, own)
	}
	for _, level := range set.levels {
		own := Rule{
			Min: map[string]float64{"level": float64(level)},
			Max: map[string]float64{"level": float64(level)},
		}
		own.inheritDefaults(set.defaults)
		rules = append(rules, own)
	}
	for _, ref := range set.refs {
		resolved, err := e.expand(ref, chain)
		if err != nil {
			return nil, err
		}
		for _, rule := range resolved {
			rules = append(rules, rule.Clone())
		}
	}
	e.done[name] = rules
	return rules, nil
}

func dedupeNames(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
