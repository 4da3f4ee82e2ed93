package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Dosada05/ladder-system/elo"
	"github.com/Dosada05/ladder-system/models"
	"github.com/Dosada05/ladder-system/repositories"
	"golang.org/x/sync/errgroup"
)

// BaselineLoader resolves each participant's rating state as it was before
// the session being recalculated began. Precedence, stopping at the first
// layer that applies:
//
//  1. latest snapshot from a completed earlier session
//  2. a snapshot tagged to this session itself
//  3. the durable rating with this session's recorded effects reversed out
//  4. the initial default (1500, zero counters)
//
// Layer three depends on Match Elo History rows, so callers must pass the
// history read BEFORE those rows are deleted for the replay.
type BaselineLoader interface {
	LoadBaselines(ctx context.Context, in BaselineInput) (map[int]models.RatingState, error)
}

type BaselineInput struct {
	SessionID  int
	EntityType models.EntityType // player_singles or player_doubles
	PlayerIDs  []int

	// SessionMatches are this session's matches of the edited type, used to
	// reverse win/loss/draw/set counts out of the durable rating.
	SessionMatches []*models.Match

	// SessionHistory are this session's audit rows for EntityType, used to
	// reverse elo deltas out of the durable rating.
	SessionHistory []*models.MatchEloHistory
}

type baselineLoader struct {
	snapshots   repositories.SnapshotRepository
	singlesRepo repositories.PlayerRatingRepository
	doublesRepo repositories.PlayerDoublesRatingRepository
}

func NewBaselineLoader(
	snapshots repositories.SnapshotRepository,
	singlesRepo repositories.PlayerRatingRepository,
	doublesRepo repositories.PlayerDoublesRatingRepository,
) BaselineLoader {
	return &baselineLoader{
		snapshots:   snapshots,
		singlesRepo: singlesRepo,
		doublesRepo: doublesRepo,
	}
}

func (l *baselineLoader) LoadBaselines(ctx context.Context, in BaselineInput) (map[int]models.RatingState, error) {
	if in.EntityType != models.EntityPlayerSingles && in.EntityType != models.EntityPlayerDoubles {
		return nil, fmt.Errorf("baseline loading is not defined for entity type %q", in.EntityType)
	}

	deltaSums := sumDeltasByEntity(in.SessionHistory)

	baselines := make(map[int]models.RatingState, len(in.PlayerIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, playerID := range in.PlayerIDs {
		playerID := playerID
		g.Go(func() error {
			state, err := l.resolveOne(gctx, in, playerID, deltaSums[playerID])
			if err != nil {
				return err
			}
			mu.Lock()
			baselines[playerID] = state
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return baselines, nil
}

func (l *baselineLoader) resolveOne(ctx context.Context, in BaselineInput, playerID int, sessionDelta float64) (models.RatingState, error) {
	// Layer 1: snapshot from a completed earlier session.
	snap, err := l.snapshots.GetLatestBefore(ctx, in.EntityType, playerID, in.SessionID)
	if err == nil {
		return snap.RatingState, nil
	}
	if !errors.Is(err, repositories.ErrSnapshotNotFound) {
		return models.RatingState{}, fmt.Errorf("baseline layer 1 for player %d: %w", playerID, err)
	}

	// Layer 2: start-of-session snapshot tagged to this session.
	snap, err = l.snapshots.GetForSession(ctx, in.SessionID, in.EntityType, playerID)
	if err == nil {
		return snap.RatingState, nil
	}
	if !errors.Is(err, repositories.ErrSnapshotNotFound) {
		return models.RatingState{}, fmt.Errorf("baseline layer 2 for player %d: %w", playerID, err)
	}

	// Layer 3: reverse this session's recorded effects out of the durable
	// rating. Bootstraps baselines when no snapshot exists yet.
	durable, err := l.durableState(ctx, in.EntityType, playerID)
	if err == nil {
		return reverseSessionEffects(durable, playerID, in.SessionMatches, sessionDelta), nil
	}
	if !errors.Is(err, repositories.ErrRatingNotFound) {
		return models.RatingState{}, fmt.Errorf("baseline layer 3 for player %d: %w", playerID, err)
	}

	// Layer 4: first-ever appearance.
	return defaultRatingState(), nil
}

func (l *baselineLoader) durableState(ctx context.Context, entityType models.EntityType, playerID int) (models.RatingState, error) {
	switch entityType {
	case models.EntityPlayerDoubles:
		rating, err := l.doublesRepo.Get(ctx, playerID)
		if err != nil {
			return models.RatingState{}, err
		}
		return rating.RatingState, nil
	default:
		rating, err := l.singlesRepo.Get(ctx, playerID)
		if err != nil {
			return models.RatingState{}, err
		}
		return rating.RatingState, nil
	}
}

func defaultRatingState() models.RatingState {
	return models.RatingState{
		Elo:           elo.DefaultInitialRating,
		MatchesPlayed: elo.DefaultInitialExperience,
	}
}

func sumDeltasByEntity(history []*models.MatchEloHistory) map[int]float64 {
	sums := make(map[int]float64)
	for _, rec := range history {
		sums[rec.EntityID] += rec.EloChange
	}
	return sums
}

// reverseSessionEffects subtracts the session's recorded elo delta and the
// win/loss/draw/set counts derivable from its match rows. Derived counts are
// clamped at zero, never negative.
func reverseSessionEffects(durable models.RatingState, playerID int, sessionMatches []*models.Match, sessionDelta float64) models.RatingState {
	state := durable
	state.Elo -= sessionDelta

	for _, m := range sessionMatches {
		side := sideOfPlayer(m, playerID)
		if side == 0 || !m.HasScores() {
			continue
		}

		own, opp := *m.Team1Score, *m.Team2Score
		if side == 2 {
			own, opp = opp, own
		}

		state.MatchesPlayed--
		switch {
		case own > opp:
			state.Wins--
		case own < opp:
			state.Losses--
		default:
			state.Draws--
		}
		state.SetsWon -= own
		state.SetsLost -= opp
	}

	state.MatchesPlayed = clampZero(state.MatchesPlayed)
	state.Wins = clampZero(state.Wins)
	state.Losses = clampZero(state.Losses)
	state.Draws = clampZero(state.Draws)
	state.SetsWon = clampZero(state.SetsWon)
	state.SetsLost = clampZero(state.SetsLost)
	return state
}

// sideOfPlayer returns 1 or 2 for the side playerID plays on, 0 if absent.
func sideOfPlayer(m *models.Match, playerID int) int {
	half := len(m.PlayerIDs) / 2
	for i, id := range m.PlayerIDs {
		if int(id) == playerID {
			if i < half {
				return 1
			}
			return 2
		}
	}
	return 0
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
