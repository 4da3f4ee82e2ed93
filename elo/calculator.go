// Package elo holds the pure rating math: expected score, K-factor schedule
// and delta computation. No I/O, no state — the replay engine owns all state.
package elo

import "math"

const (
	// DefaultInitialRating is the rating every entity starts from. All
	// synthesized baselines must go through this constant.
	DefaultInitialRating = 1500.0

	// DefaultInitialExperience is the matches_played count of a fresh entity.
	DefaultInitialExperience = 0

	// K-factor bands by experience. Higher K while an entity's rating is
	// still uncertain, tapering as it plays more.
	KFactorNewbie = 40.0 // < 10 matches
	KFactorActive = 24.0 // 10-29 matches
	KFactorStable = 16.0 // >= 30 matches
)

type Result float64

const (
	Loss Result = 0.0
	Draw Result = 0.5
	Win  Result = 1.0
)

// ResultsFromScores maps a score comparison to both sides' results.
// Strictly greater wins; equal scores is a draw.
func ResultsFromScores(score1, score2 int) (Result, Result) {
	switch {
	case score1 > score2:
		return Win, Loss
	case score1 < score2:
		return Loss, Win
	default:
		return Draw, Draw
	}
}

// ExpectedScore computes the standard logistic expectation of ratingSelf
// against ratingOpponent.
func ExpectedScore(ratingSelf, ratingOpponent float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingOpponent-ratingSelf)/400.0))
}

// KFactor is monotonically non-increasing in experience. The same schedule
// is used for preview and persisted calculation.
func KFactor(experience int) float64 {
	switch {
	case experience < 10:
		return KFactorNewbie
	case experience < 30:
		return KFactorActive
	default:
		return KFactorStable
	}
}

// Delta returns the full-precision rating change for one side of a match.
// No rounding: the replay engine accumulates raw deltas and only the display
// layer may round.
func Delta(ratingSelf, ratingOpponent float64, result Result, experience int) float64 {
	return KFactor(experience) * (float64(result) - ExpectedScore(ratingSelf, ratingOpponent))
}

// DeltaWithK is Delta with a caller-supplied K, for derivations that need a
// symmetric K across both sides (the player-doubles update).
func DeltaWithK(ratingSelf, ratingOpponent float64, result Result, k float64) float64 {
	return k * (float64(result) - ExpectedScore(ratingSelf, ratingOpponent))
}
