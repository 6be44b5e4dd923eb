package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
)

// writeSummary prints targets, their rule-sets and endpoints in name order.
func writeSummary(out io.Writer, cfg config.Config) {
	for _, warning := range cfg.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}

	fmt.Fprintf(out, "targets: %d\n", len(cfg.Targets))
	for _, name := range sortedNames(cfg.Targets) {
		target := cfg.Targets[name]
		fmt.Fprintf(out, "  %s\n", name)
		fmt.Fprintf(out, "    endpoints: %s\n", joinOrNone(target.Endpoints))
		if len(target.Includes) > 0 {
			fmt.Fprintf(out, "    includes: %s\n", strings.Join(target.Includes, ", "))
		}
		if len(target.Raids) > 0 {
			fmt.Fprintf(out, "    raids: %s\n", strings.Join(target.Raids, ", "))
		}
		if target.Gym {
			fmt.Fprintf(out, "    gym: watching %d trainers\n", len(cfg.Trainers))
		}
	}

	fmt.Fprintf(out, "rule-sets: %d\n", len(cfg.RuleSets))
	for _, name := range sortedNames(cfg.RuleSets) {
		writeRuleSet(out, cfg.RuleSets[name])
	}
	fmt.Fprintf(out, "raid rule-sets: %d\n", len(cfg.RaidSets))
	for _, name := range sortedNames(cfg.RaidSets) {
		writeRuleSet(out, cfg.RaidSets[name])
	}
}

func writeRuleSet(out io.Writer, set config.RuleSet) {
	open := 0
	for _, rule := range set.Rules {
		if rule.Empty() {
			open++
		}
	}
	fmt.Fprintf(out, "  %s: %d rules", set.Name, len(set.Rules))
	if open > 0 {
		fmt.Fprintf(out, " (%d match everything)", open)
	}
	if len(set.Levels) > 0 {
		levels := make([]string, 0, len(set.Levels))
		for _, level := range set.Levels {
			levels = append(levels, fmt.Sprint(level))
		}
		fmt.Fprintf(out, " levels=%s", strings.Join(levels, ","))
	}
	fmt.Fprintln(out)
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

func sortedNames[V any](values map[string]V) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
