package models

import "time"

type MatchType string

const (
	MatchTypeSingles MatchType = "singles"
	MatchTypeDoubles MatchType = "doubles"
)

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusCompleted MatchStatus = "completed"
)

// Match identity is immutable; only scores, status and edit metadata are
// mutated by result submission or a later edit.
//
// PlayerIDs is ordered: two entries for singles, four for doubles where the
// first two form side 1 and the last two form side 2.
type Match struct {
	ID          int         `json:"id"`
	SessionID   int         `json:"session_id"`
	RoundNumber int         `json:"round_number"`
	MatchOrder  int         `json:"match_order"`
	MatchType   MatchType   `json:"match_type"`
	PlayerIDs   []int64     `json:"player_ids"`
	Team1ID     *int        `json:"team_1_id,omitempty"`
	Team2ID     *int        `json:"team_2_id,omitempty"`
	Team1Score  *int        `json:"team1_score,omitempty"`
	Team2Score  *int        `json:"team2_score,omitempty"`
	Status      MatchStatus `json:"status"`
	IsEdited    bool        `json:"is_edited"`
	EditedAt    *time.Time  `json:"edited_at,omitempty"`
	EditedBy    *int        `json:"edited_by,omitempty"`
	EditReason  *string     `json:"edit_reason,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// HasScores reports whether the match carries a played result.
func (m *Match) HasScores() bool {
	return m.Team1Score != nil && m.Team2Score != nil
}
