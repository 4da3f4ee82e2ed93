package services

import (
	"context"
	"testing"

	"github.com/Dosada05/ladder-system/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type baselineFixture struct {
	snapshots *fakeSnapshotRepo
	singles   *fakeRatingRepo
	doubles   *fakeDoublesRatingRepo
	loader    BaselineLoader
}

func newBaselineFixture() *baselineFixture {
	f := &baselineFixture{
		snapshots: newFakeSnapshotRepo(),
		singles:   newFakeRatingRepo(),
		doubles:   newFakeDoublesRatingRepo(),
	}
	f.loader = NewBaselineLoader(f.snapshots, f.singles, f.doubles)
	return f
}

func scoredMatch(sessionID int, players []int64, s1, s2 int) *models.Match {
	return &models.Match{
		SessionID:  sessionID,
		MatchType:  models.MatchTypeSingles,
		PlayerIDs:  players,
		Team1Score: &s1,
		Team2Score: &s2,
		Status:     models.MatchStatusCompleted,
	}
}

func TestBaselinePriorSnapshotWins(t *testing.T) {
	f := newBaselineFixture()
	ctx := context.Background()

	// Every layer is populated; the prior-session snapshot must shadow all
	// of them.
	f.snapshots.setPrior(models.EntityPlayerSingles, 1, models.RatingState{Elo: 1610, MatchesPlayed: 20})
	f.snapshots.stored[snapshotKey{SessionID: 5, EntityType: models.EntityPlayerSingles, EntityID: 1}] =
		models.RatingState{Elo: 1590, MatchesPlayed: 18}
	f.singles.ratings[1] = models.RatingState{Elo: 1700, MatchesPlayed: 25}

	baselines, err := f.loader.LoadBaselines(ctx, BaselineInput{
		SessionID:  5,
		EntityType: models.EntityPlayerSingles,
		PlayerIDs:  []int{1},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1610.0, baselines[1].Elo, 1e-9)
	assert.Equal(t, 20, baselines[1].MatchesPlayed)
}

func TestBaselineSessionSnapshotFallback(t *testing.T) {
	f := newBaselineFixture()
	ctx := context.Background()

	f.snapshots.stored[snapshotKey{SessionID: 5, EntityType: models.EntityPlayerSingles, EntityID: 1}] =
		models.RatingState{Elo: 1555, MatchesPlayed: 9}
	f.singles.ratings[1] = models.RatingState{Elo: 1700, MatchesPlayed: 25}

	baselines, err := f.loader.LoadBaselines(ctx, BaselineInput{
		SessionID:  5,
		EntityType: models.EntityPlayerSingles,
		PlayerIDs:  []int{1},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1555.0, baselines[1].Elo, 1e-9)
	assert.Equal(t, 9, baselines[1].MatchesPlayed)
}

func TestBaselineReversesDurableState(t *testing.T) {
	f := newBaselineFixture()
	ctx := context.Background()

	// No snapshots anywhere: the durable rating minus this session's recorded
	// effects is the baseline. Player 1 played two session matches: a 3-1 win
	// on side 1 and a 2-3 loss on side 2, worth +12 elo combined.
	f.singles.ratings[1] = models.RatingState{
		Elo: 1512, MatchesPlayed: 5, Wins: 3, Losses: 2, SetsWon: 15, SetsLost: 9,
	}
	matches := []*models.Match{
		scoredMatch(5, []int64{1, 2}, 3, 1),
		scoredMatch(5, []int64{3, 1}, 3, 2),
	}
	history := []*models.MatchEloHistory{
		{SessionID: 5, EntityType: models.EntityPlayerSingles, EntityID: 1, EloChange: 20},
		{SessionID: 5, EntityType: models.EntityPlayerSingles, EntityID: 1, EloChange: -8},
	}

	baselines, err := f.loader.LoadBaselines(ctx, BaselineInput{
		SessionID:      5,
		EntityType:     models.EntityPlayerSingles,
		PlayerIDs:      []int{1},
		SessionMatches: matches,
		SessionHistory: history,
	})
	require.NoError(t, err)

	got := baselines[1]
	assert.InDelta(t, 1500.0, got.Elo, 1e-9)
	assert.Equal(t, 3, got.MatchesPlayed)
	assert.Equal(t, 2, got.Wins)
	assert.Equal(t, 1, got.Losses)
	assert.Equal(t, 10, got.SetsWon)
	assert.Equal(t, 5, got.SetsLost)
}

func TestBaselineReversalClampsAtZero(t *testing.T) {
	f := newBaselineFixture()
	ctx := context.Background()

	// The durable row undercounts relative to the session's matches (manual
	// intervention, partial write). Derived counts clamp at zero instead of
	// going negative.
	f.singles.ratings[1] = models.RatingState{Elo: 1520, MatchesPlayed: 1, Wins: 1}
	matches := []*models.Match{
		scoredMatch(5, []int64{1, 2}, 3, 0),
		scoredMatch(5, []int64{1, 3}, 3, 1),
	}

	baselines, err := f.loader.LoadBaselines(ctx, BaselineInput{
		SessionID:      5,
		EntityType:     models.EntityPlayerSingles,
		PlayerIDs:      []int{1},
		SessionMatches: matches,
	})
	require.NoError(t, err)

	got := baselines[1]
	assert.Equal(t, 0, got.MatchesPlayed)
	assert.Equal(t, 0, got.Wins)
	assert.Equal(t, 0, got.SetsWon)
	assert.Equal(t, 0, got.SetsLost)
}

func TestBaselineDefaultForNewPlayer(t *testing.T) {
	f := newBaselineFixture()
	ctx := context.Background()

	baselines, err := f.loader.LoadBaselines(ctx, BaselineInput{
		SessionID:  5,
		EntityType: models.EntityPlayerSingles,
		PlayerIDs:  []int{42},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1500.0, baselines[42].Elo, 1e-9)
	assert.Equal(t, 0, baselines[42].MatchesPlayed)
}

func TestBaselineDoublesUsesDoublesTable(t *testing.T) {
	f := newBaselineFixture()
	ctx := context.Background()

	f.singles.ratings[1] = models.RatingState{Elo: 1700, MatchesPlayed: 25}
	f.doubles.ratings[1] = models.RatingState{Elo: 1530, MatchesPlayed: 4, Wins: 3, Losses: 1}

	baselines, err := f.loader.LoadBaselines(ctx, BaselineInput{
		SessionID:  5,
		EntityType: models.EntityPlayerDoubles,
		PlayerIDs:  []int{1},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1530.0, baselines[1].Elo, 1e-9)
	assert.Equal(t, 4, baselines[1].MatchesPlayed)
}

func TestBaselineRejectsTeamEntityType(t *testing.T) {
	f := newBaselineFixture()
	_, err := f.loader.LoadBaselines(context.Background(), BaselineInput{
		SessionID:  5,
		EntityType: models.EntityTeam,
		PlayerIDs:  []int{1},
	})
	assert.Error(t, err)
}
