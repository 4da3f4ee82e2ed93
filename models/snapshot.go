package models

type EntityType string

const (
	EntityPlayerSingles EntityType = "player_singles"
	EntityPlayerDoubles EntityType = "player_doubles"
	EntityTeam          EntityType = "team"
)

// SessionRatingSnapshot records an entity's rating state as of the end of a
// session. It is the baseline anchor for whichever session comes next and is
// overwritten after every recalculation of its own session.
type SessionRatingSnapshot struct {
	SessionID  int        `json:"session_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int        `json:"entity_id"`
	RatingState
}
