package state

import "time"

// Family separates dedup identity spaces.
type Family string

const (
	// FamilyCreature holds encounter ids of wild creatures.
	FamilyCreature Family = "pokemon"
	// FamilyRaid holds gym+start keys of hatched raids.
	FamilyRaid Family = "raid"
	// FamilyEgg holds gym+start keys of eggs.
	FamilyEgg Family = "egg"
)

// Families lists every dedup family in sweep order.
var Families = []Family{FamilyCreature, FamilyRaid, FamilyEgg}

// DedupStore provides test-and-set identity tracking.
// Params: family, identity key and the sighting's own expiry.
// Returns: backend dedup behavior.
type DedupStore interface {
	MarkIfAbsent(family Family, key string, expiry time.Time) bool
	Sweep(now time.Time) int
	Len(family Family) int
}

// GymSnapshot is the last known roster and metadata of one gym.
type GymSnapshot struct {
	Name     string
	Team     int
	Trainers []string
}

// RosterStore keeps last known gym rosters for diffing.
// Params: gym id keyed snapshots.
// Returns: backend roster behavior.
type RosterStore interface {
	Replace(gymID string, snapshot GymSnapshot) (GymSnapshot, bool)
	Get(gymID string) (GymSnapshot, bool)
}
