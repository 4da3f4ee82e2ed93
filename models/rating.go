package models

// RatingState is the rating-affecting bookkeeping shared by singles ratings,
// doubles ratings and team ratings. Elo is kept at full floating precision;
// rounding happens only at display time.
type RatingState struct {
	Elo           float64 `json:"elo"`
	MatchesPlayed int     `json:"matches_played"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	SetsWon       int     `json:"sets_won"`
	SetsLost      int     `json:"sets_lost"`
}

// PlayerRating is a player's global singles rating, one row per player.
type PlayerRating struct {
	PlayerID int `json:"player_id"`
	RatingState
}

// PlayerDoublesRating is a player's partner-independent doubles skill.
// It lives in a rating space fully separate from singles.
type PlayerDoublesRating struct {
	PlayerID int `json:"player_id"`
	RatingState
}

// TeamRating is keyed by the canonical (sorted) pair of player ids.
type TeamRating struct {
	TeamID      int `json:"team_id"`
	PlayerLowID int `json:"player_low_id"`
	PlayerHiID  int `json:"player_high_id"`
	RatingState
}
