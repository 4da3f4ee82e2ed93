package models

import "time"

// MatchEloHistory is the audit ledger: one row per entity per match per
// replay, recording before/after/delta. Baseline reversal (the third
// baseline fallback) depends on these rows, so a recalculation must read
// them before deleting and fully reinserts them afterwards.
type MatchEloHistory struct {
	ID         int        `json:"id"`
	MatchID    int        `json:"match_id"`
	SessionID  int        `json:"session_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int        `json:"entity_id"`
	EloBefore  float64    `json:"elo_before"`
	EloAfter   float64    `json:"elo_after"`
	EloChange  float64    `json:"elo_change"`
	CreatedAt  time.Time  `json:"created_at"`
}
