package services

import "github.com/Dosada05/ladder-system/models"

// entityKey identifies one rating-bearing entity inside a replay run.
type entityKey struct {
	Type models.EntityType
	ID   int
}

// ledgerEntry couples an entity's evolving in-memory state with the baseline
// it started from. The baseline never changes after loading; the guardrail in
// the persistence step compares against it, not against the live table.
type ledgerEntry struct {
	State    models.RatingState
	Baseline models.RatingState
	Touched  bool
}

// ratingLedger is the in-memory map the replay engine mutates while walking
// matches. It is owned exclusively by one recalculation call and is never
// shared across requests.
type ratingLedger struct {
	entries map[entityKey]*ledgerEntry
}

func newRatingLedger() *ratingLedger {
	return &ratingLedger{entries: make(map[entityKey]*ledgerEntry)}
}

// seed registers an entity's baseline. A later seed for the same key is
// ignored so fallback ordering stays authoritative.
func (l *ratingLedger) seed(key entityKey, baseline models.RatingState) {
	if _, ok := l.entries[key]; ok {
		return
	}
	l.entries[key] = &ledgerEntry{State: baseline, Baseline: baseline}
}

// get returns the entry for key, seeding a default-initialized one if the
// entity was never loaded (first-ever appearance mid-replay).
func (l *ratingLedger) get(key entityKey, fallback models.RatingState) *ledgerEntry {
	entry, ok := l.entries[key]
	if !ok {
		entry = &ledgerEntry{State: fallback, Baseline: fallback}
		l.entries[key] = entry
	}
	return entry
}

// touched returns the keys of entities actually mutated by the walk. This is
// deliberately not "all baseline entities": a defensively-seeded player with
// zero replayed matches must not be written back.
func (l *ratingLedger) touched() []entityKey {
	keys := make([]entityKey, 0, len(l.entries))
	for key, entry := range l.entries {
		if entry.Touched {
			keys = append(keys, key)
		}
	}
	return keys
}
