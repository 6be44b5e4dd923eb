package domain

import (
	"errors"
	"testing"
)

func TestDecodeEnvelopesSingleAndBatch(t *testing.T) {
	t.Parallel()

	envelopes, err := DecodeEnvelopes([]byte(`{"type":"Pokemon","message":{"encounter_id":"E1"}}`))
	if err != nil {
		t.Fatalf("decode single: %v", err)
	}
	if len(envelopes) != 1 || envelopes[0].Type != EventTypePokemon {
		t.Fatalf("unexpected envelopes %+v", envelopes)
	}

	payload := `[` + validPokemonEnvelope("E1") + `,{"type":"raid","message":{}}]`
	envelopes, err = DecodeEnvelopes([]byte(payload))
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(envelopes) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envelopes))
	}
	if envelopes[1].Type != EventTypeRaid {
		t.Fatalf("unexpected second type %q", envelopes[1].Type)
	}
}

func TestDecodeEnvelopesKeepsUntypedBatchItems(t *testing.T) {
	t.Parallel()

	envelopes, err := DecodeEnvelopes([]byte(`[` + validPokemonEnvelope("E1") + `,{"message":{}}]`))
	if err != nil {
		t.Fatalf("one untyped item must not fail the batch: %v", err)
	}
	if len(envelopes) != 2 || envelopes[0].Type != EventTypePokemon || envelopes[1].Type != "" {
		t.Fatalf("unexpected envelopes %+v", envelopes)
	}
	if envelopes[1].Type.Known() || !envelopes[0].Type.Known() {
		t.Fatalf("unexpected Known results")
	}
}

func TestDecodeEnvelopesRejectsBadPayloads(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{"", "[]", `{"message":{}}`, `{"type":`} {
		if _, err := DecodeEnvelopes([]byte(payload)); err == nil {
			t.Fatalf("expected error for payload %q", payload)
		}
	}
}

func TestDecodePokemonRequiresFields(t *testing.T) {
	t.Parallel()

	message, err := DecodePokemon([]byte(`{"encounter_id":12345,"pokemon_id":1,"latitude":1.5,"longitude":2.5,"disappear_time":1500000000,"individual_attack":null}`))
	if err != nil {
		t.Fatalf("decode pokemon: %v", err)
	}
	if message.EncounterID != "12345" {
		t.Fatalf("expected numeric encounter id to decode as string, got %q", message.EncounterID)
	}
	if message.IndividualAttack != nil {
		t.Fatalf("expected null roll to stay nil")
	}

	cases := []string{
		`{"pokemon_id":1,"latitude":1,"longitude":2,"disappear_time":1}`,
		`{"encounter_id":"E","latitude":1,"longitude":2,"disappear_time":1}`,
		`{"encounter_id":"E","pokemon_id":1,"longitude":2,"disappear_time":1}`,
		`{"encounter_id":"E","pokemon_id":1,"latitude":1,"longitude":2}`,
		`null`,
		`{"encounter_id":"E","pokemon_id":"x"}`,
	}
	for _, raw := range cases {
		if _, err := DecodePokemon([]byte(raw)); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("expected ErrMalformedEvent for %s, got %v", raw, err)
		}
	}
}

func TestDecodeRaidEggAndKey(t *testing.T) {
	t.Parallel()

	message, err := DecodeRaid([]byte(`{"gym_id":"gym-1","pokemon_id":null,"start":1500,"end":1600,"spawn":1400,"level":5,"latitude":1,"longitude":2}`))
	if err != nil {
		t.Fatalf("decode raid: %v", err)
	}
	if !message.IsEgg() {
		t.Fatalf("expected egg when pokemon_id is null")
	}
	if key := message.IdentityKey(); key != "gym-11500" {
		t.Fatalf("unexpected identity key %q", key)
	}
	if _, err := DecodeRaid([]byte(`{"gym_id":"g","latitude":1,"longitude":2}`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected malformed raid without start/end, got %v", err)
	}
}

func TestDecodeGymDetailsTrainerNames(t *testing.T) {
	t.Parallel()

	message, err := DecodeGymDetails([]byte(`{"id":"g1","name":"Fountain","latitude":1,"longitude":2,"team":2,"pokemon":[{"trainer_name":"ash"},{"trainer_name":"misty"}]}`))
	if err != nil {
		t.Fatalf("decode gym: %v", err)
	}
	names := message.TrainerNames()
	if len(names) != 2 || names[0] != "ash" || names[1] != "misty" {
		t.Fatalf("unexpected trainer names %v", names)
	}
	if TeamName(message.Team) != "Valor" {
		t.Fatalf("unexpected team name %q", TeamName(message.Team))
	}
}

func TestSightingNumericAccessors(t *testing.T) {
	t.Parallel()

	level := 20
	sighting := Sighting{Kind: KindCreature, PokemonID: 7, Lat: 1, Lon: 2, Level: &level, Rolls: &Rolls{Attack: 15, Defense: 15, Stamina: 15}}
	if iv, ok := sighting.Numeric("iv"); !ok || iv != 100 {
		t.Fatalf("unexpected iv %v %v", iv, ok)
	}
	if id, ok := sighting.Numeric("id"); !ok || id != 7 {
		t.Fatalf("unexpected id %v %v", id, ok)
	}
	egg := Sighting{Kind: KindEgg, PokemonID: 0}
	if _, ok := egg.Numeric("id"); ok {
		t.Fatalf("egg must not expose a species id")
	}
	if _, ok := egg.Numeric("attack"); ok {
		t.Fatalf("egg must not expose rolls")
	}
}

func validPokemonEnvelope(encounterID string) string {
	return `{"type":"pokemon","message":{"encounter_id":"` + encounterID + `","pokemon_id":1,"latitude":59.3,"longitude":18.0,"disappear_time":1500000000}}`
}
