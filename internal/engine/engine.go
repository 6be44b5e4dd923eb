package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/trew/PokemonGoMapNotifier/internal/config"
	"github.com/trew/PokemonGoMapNotifier/internal/domain"
	"github.com/trew/PokemonGoMapNotifier/internal/enrich"
	"github.com/trew/PokemonGoMapNotifier/internal/gamedata"
	"github.com/trew/PokemonGoMapNotifier/internal/metrics"
	"github.com/trew/PokemonGoMapNotifier/internal/state"
)

// ErrUnknownEventType marks envelopes with an unsupported type discriminator.
var ErrUnknownEventType = errors.New("unknown event type")

// Dispatcher delivers one alert to every endpoint of its target.
type Dispatcher interface {
	Deliver(ctx context.Context, alert domain.Alert) int
}

// Deps are the collaborators of one engine; nil fields get in-memory defaults.
type Deps struct {
	Lookup     *gamedata.Lookup
	Dedup      state.DedupStore
	Rosters    state.RosterStore
	Builder    *enrich.Builder
	Dispatcher Dispatcher
	Logger     *slog.Logger
	Now        func() time.Time
}

// Engine owns dedup state, gym rosters and the distance anchor.
// Params: resolved config plus injected collaborators.
// Returns: sequential event processor used by the worker.
type Engine struct {
	cfg        *config.Config
	lookup     *gamedata.Lookup
	matcher    Matcher
	dedup      state.DedupStore
	rosters    state.RosterStore
	builder    *enrich.Builder
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time

	creatureSets []string
	raidSets     []string
	gymTargets   []string

	mu     sync.RWMutex
	anchor *orb.Point
}

// New creates engine bound to cfg.
// Params: resolved config and collaborators; Lookup and Dispatcher are required.
// Returns: engine with anchor initialized from config location.
func New(cfg *config.Config, deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Dedup == nil {
		deps.Dedup = state.NewMemoryStore(deps.Now)
	}
	if deps.Rosters == nil {
		deps.Rosters = state.NewMemoryRosterStore()
	}
	if deps.Builder == nil {
		deps.Builder = enrich.NewBuilder(cfg.Options.GoogleKey, nil, deps.Now, nil)
	}
	e := &Engine{
		cfg:          cfg,
		lookup:       deps.Lookup,
		matcher:      NewMatcher(deps.Lookup),
		dedup:        deps.Dedup,
		rosters:      deps.Rosters,
		builder:      deps.Builder,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		now:          deps.Now,
		creatureSets: sortedKeys(cfg.CreatureIndex),
		raidSets:     sortedKeys(cfg.RaidIndex),
	}
	for _, name := range sortedKeys(cfg.Targets) {
		if cfg.Targets[name].Gym {
			e.gymTargets = append(e.gymTargets, name)
		}
	}
	if location := cfg.Options.Location; location != nil {
		e.SetAnchor(location.Lat, location.Lon)
	}
	return e
}

// SetAnchor moves the reference point used by max_dist rules.
func (e *Engine) SetAnchor(lat, lon float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.anchor = &orb.Point{lon, lat}
}

// ClearAnchor removes the reference point; max_dist rules then fail closed.
func (e *Engine) ClearAnchor() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.anchor = nil
}

// Anchor returns a copy of the current reference point.
func (e *Engine) Anchor() *orb.Point {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.anchor == nil {
		return nil
	}
	point := *e.anchor
	return &point
}

// Handle routes one envelope by type.
// Params: context and decoded envelope.
// Returns: number of target alerts dispatched, or an error for malformed/unknown input.
func (e *Engine) Handle(ctx context.Context, envelope domain.Envelope) (int, error) {
	switch envelope.Type {
	case domain.EventTypePokemon:
		message, err := domain.DecodePokemon(envelope.Message)
		if err != nil {
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			return 0, err
		}
		return e.HandlePokemon(ctx, message), nil
	case domain.EventTypeRaid:
		message, err := domain.DecodeRaid(envelope.Message)
		if err != nil {
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			return 0, err
		}
		return e.HandleRaid(ctx, message), nil
	case domain.EventTypeGymDetails:
		message, err := domain.DecodeGymDetails(envelope.Message)
		if err != nil {
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			return 0, err
		}
		return e.HandleGymDetails(ctx, message), nil
	default:
		metrics.EventsDropped.WithLabelValues("unknown_type").Inc()
		return 0, fmt.Errorf("%w %q", ErrUnknownEventType, envelope.Type)
	}
}

// HandlePokemon dedups, matches and dispatches one creature sighting.
// Params: validated creature message.
// Returns: number of targets notified.
func (e *Engine) HandlePokemon(ctx context.Context, message domain.PokemonMessage) int {
	sighting := e.creatureSighting(message)
	if !e.dedup.MarkIfAbsent(state.FamilyCreature, sighting.Key, sighting.Expiry) {
		metrics.EventsDropped.WithLabelValues("duplicate").Inc()
		e.logger.Debug("encounter already processed", "encounter_id", sighting.Key)
		return 0
	}
	metrics.DedupEntries.WithLabelValues(string(state.FamilyCreature)).Set(float64(e.dedup.Len(state.FamilyCreature)))

	anchor := e.Anchor()
	matches := e.interestedTargets(sighting, e.creatureSets, e.cfg.RuleSets, e.cfg.CreatureIndex, anchor)
	if len(matches) == 0 {
		e.logger.Debug("no rule-set matched", "name", sighting.Name, "encounter_id", sighting.Key)
		return 0
	}

	payload := e.builder.Pokemon(ctx, sighting)
	payload.Distance = e.distance(anchor, sighting)
	e.logger.Info("notifying pokemon", "name", sighting.Name, "targets", targetNames(matches))
	for _, match := range matches {
		alert := payload
		alert.Matched = match.fired
		e.deliver(ctx, domain.Alert{Kind: domain.AlertPokemon, Target: match.target, Pokemon: &alert})
	}
	return len(matches)
}

// HandleRaid dedups raids and eggs in separate families keyed by gym+start.
// Params: validated raid message.
// Returns: number of targets notified.
func (e *Engine) HandleRaid(ctx context.Context, message domain.RaidMessage) int {
	sighting := e.raidSighting(message)
	family := state.FamilyRaid
	kind := domain.AlertRaid
	if sighting.IsEgg() {
		family = state.FamilyEgg
		kind = domain.AlertEgg
	}
	if !e.dedup.MarkIfAbsent(family, sighting.Key, sighting.Expiry) {
		metrics.EventsDropped.WithLabelValues("duplicate").Inc()
		e.logger.Debug("raid already processed", "family", family, "key", sighting.Key)
		return 0
	}
	metrics.DedupEntries.WithLabelValues(string(family)).Set(float64(e.dedup.Len(family)))

	anchor := e.Anchor()
	matches := e.interestedTargets(sighting, e.raidSets, e.cfg.RaidSets, e.cfg.RaidIndex, anchor)
	if len(matches) == 0 {
		e.logger.Debug("no raid rule-set matched", "name", sighting.Name, "key", sighting.Key)
		return 0
	}

	gym, _ := e.rosters.Get(sighting.GymID)
	payload := e.builder.Raid(ctx, sighting, gym.Name, gym.Team)
	payload.Distance = e.distance(anchor, sighting)
	e.logger.Info("notifying "+string(kind), "name", payload.Name, "gym", payload.GymName, "targets", targetNames(matches))
	for _, match := range matches {
		alert := payload
		alert.Matched = match.fired
		e.deliver(ctx, domain.Alert{Kind: kind, Target: match.target, Raid: &alert})
	}
	return len(matches)
}

// HandleGymDetails diffs the roster against the last snapshot and alerts on
// watched trainers that newly joined. The snapshot is always replaced; the
// first snapshot of a gym only seeds state.
// Params: validated gym message.
// Returns: number of alerts dispatched.
func (e *Engine) HandleGymDetails(ctx context.Context, message domain.GymDetailsMessage) int {
	current := message.TrainerNames()
	previous, known := e.rosters.Replace(string(message.ID), state.GymSnapshot{
		Name:     message.Name,
		Team:     message.Team,
		Trainers: current,
	})
	if !known || len(e.gymTargets) == 0 || len(e.cfg.Trainers) == 0 {
		return 0
	}

	joined := make(map[string]struct{})
	for _, name := range state.NewlyPresent(previous.Trainers, current) {
		joined[name] = struct{}{}
	}
	sent := 0
	for _, trainer := range e.cfg.Trainers {
		if _, ok := joined[trainer]; !ok {
			continue
		}
		delete(joined, trainer)
		payload := e.builder.Gym(trainer, message)
		payload.Name = previous.Name
		if payload.Name == "" {
			payload.Name = message.Name
		}
		e.logger.Info("trainer joined gym", "trainer", trainer, "gym", payload.Name)
		for _, target := range e.gymTargets {
			alert := payload
			e.deliver(ctx, domain.Alert{Kind: domain.AlertGym, Target: target, Gym: &alert})
			sent++
		}
	}
	return sent
}

// Sweep forgets identities whose expiry has passed.
// Params: reference time.
// Returns: number of removed identities.
func (e *Engine) Sweep(now time.Time) int {
	removed := e.dedup.Sweep(now)
	metrics.SweepRemoved.Add(float64(removed))
	for _, family := range state.Families {
		metrics.DedupEntries.WithLabelValues(string(family)).Set(float64(e.dedup.Len(family)))
	}
	if removed > 0 {
		e.logger.Debug("dedup sweep", "removed", removed)
	}
	return removed
}

func (e *Engine) deliver(ctx context.Context, alert domain.Alert) {
	metrics.AlertsMatched.WithLabelValues(string(alert.Kind)).Inc()
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.Deliver(ctx, alert)
}

type targetMatch struct {
	target string
	fired  []string
}

// interestedTargets unions subscribers of every matching rule-set.
// Params: sighting, rule-set names in evaluation order, sets and reverse index.
// Returns: targets sorted by name with the constraints of the first rule that admitted them.
func (e *Engine) interestedTargets(s domain.Sighting, names []string, sets map[string]config.RuleSet, index map[string][]string, anchor *orb.Point) []targetMatch {
	byTarget := make(map[string][]string)
	for _, name := range names {
		result, ok := e.matcher.FirstMatch(s, sets[name], anchor)
		if !ok {
			continue
		}
		e.logger.Debug("rule-set matched", "rule_set", name, "name", s.Name, "fired", result.Fired)
		for _, target := range index[name] {
			if _, seen := byTarget[target]; !seen {
				byTarget[target] = result.Fired
			}
		}
	}
	out := make([]targetMatch, 0, len(byTarget))
	for _, target := range sortedKeys(byTarget) {
		out = append(out, targetMatch{target: target, fired: byTarget[target]})
	}
	return out
}

func (e *Engine) distance(anchor *orb.Point, s domain.Sighting) *int {
	if anchor == nil {
		return nil
	}
	meters := int(math.Round(Distance(*anchor, s.Lat, s.Lon)))
	return &meters
}

// creatureSighting normalizes a creature message; rolls are kept only when all three are known.
func (e *Engine) creatureSighting(message domain.PokemonMessage) domain.Sighting {
	sighting := domain.Sighting{
		Kind:      domain.KindCreature,
		Key:       string(message.EncounterID),
		PokemonID: *message.PokemonID,
		Name:      e.lookup.PokemonName(*message.PokemonID),
		Lat:       *message.Latitude,
		Lon:       *message.Longitude,
		CP:        message.CP,
		Level:     message.PokemonLevel,
		Form:      formLetter(message.Form),
		Expiry:    time.Unix(*message.DisappearTime, 0),
	}
	if sighting.Level == nil && message.CPMultiplier != nil {
		// Half levels round up so a bound on the whole level never admits them.
		if level := e.lookup.LevelFromMultiplier(*message.CPMultiplier); level > 0 {
			whole := int(math.Ceil(level))
			sighting.Level = &whole
		}
	}
	attack, defense, stamina := rollOrMissing(message.IndividualAttack), rollOrMissing(message.IndividualDefense), rollOrMissing(message.IndividualStamina)
	if attack > -1 && defense > -1 && stamina > -1 {
		sighting.Rolls = &domain.Rolls{Attack: attack, Defense: defense, Stamina: stamina}
	}
	if message.Move1 != nil {
		sighting.Move1 = e.lookup.MoveName(*message.Move1)
	}
	if message.Move2 != nil {
		sighting.Move2 = e.lookup.MoveName(*message.Move2)
	}
	return sighting
}

func (e *Engine) raidSighting(message domain.RaidMessage) domain.Sighting {
	level := message.Level
	sighting := domain.Sighting{
		Kind:   domain.KindEgg,
		Key:    message.IdentityKey(),
		Lat:    *message.Latitude,
		Lon:    *message.Longitude,
		Level:  &level,
		Expiry: time.Unix(*message.End, 0),
		GymID:  string(message.GymID),
		Spawn:  time.Unix(message.Spawn, 0),
		Start:  time.Unix(*message.Start, 0),
		End:    time.Unix(*message.End, 0),
		Name:   "Egg",
	}
	if message.IsEgg() {
		return sighting
	}
	sighting.Kind = domain.KindRaid
	sighting.PokemonID = *message.PokemonID
	sighting.Name = e.lookup.PokemonName(*message.PokemonID)
	sighting.CP = message.CP
	if message.Move1 != nil {
		sighting.Move1 = e.lookup.MoveName(*message.Move1)
	}
	if message.Move2 != nil {
		sighting.Move2 = e.lookup.MoveName(*message.Move2)
	}
	return sighting
}

// formLetter maps form offsets 1..26 to A..Z.
func formLetter(form *int) string {
	if form == nil || *form < 1 || *form > 26 {
		return ""
	}
	return string(rune('A' + *form - 1))
}

func rollOrMissing(value *int) int {
	if value == nil {
		return -1
	}
	return *value
}

func targetNames(matches []targetMatch) []string {
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, match.target)
	}
	return names
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
