package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/Dosada05/ladder-system/elo"
	"github.com/Dosada05/ladder-system/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	tx        *fakeTxRunner
	sessions  *fakeSessionRepo
	matches   *fakeMatchRepo
	teams     *fakeTeamRepo
	singles   *fakeRatingRepo
	doubles   *fakeDoublesRatingRepo
	snapshots *fakeSnapshotRepo
	history   *fakeHistoryRepo
	notifier  *captureNotifier
	service   RecalcService
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		tx:        &fakeTxRunner{},
		sessions:  newFakeSessionRepo(),
		matches:   newFakeMatchRepo(),
		teams:     newFakeTeamRepo(),
		singles:   newFakeRatingRepo(),
		doubles:   newFakeDoublesRatingRepo(),
		snapshots: newFakeSnapshotRepo(),
		history:   newFakeHistoryRepo(),
		notifier:  &captureNotifier{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	baselines := NewBaselineLoader(f.snapshots, f.singles, f.doubles)
	f.service = NewRecalcService(
		f.tx, f.sessions, f.matches, f.teams,
		f.singles, f.doubles, f.snapshots, f.history,
		baselines, f.notifier, logger,
	)
	return f
}

func (f *engineFixture) addSession(t *testing.T, owner int) *models.Session {
	t.Helper()
	session := &models.Session{Name: "thursday ladder", CreatedBy: owner, Status: models.SessionStatusActive}
	require.NoError(t, f.sessions.Create(context.Background(), session))
	return session
}

func (f *engineFixture) addSinglesMatch(t *testing.T, sessionID, round, order, p1, p2 int, scores *[2]int) *models.Match {
	t.Helper()
	m := &models.Match{
		SessionID:   sessionID,
		RoundNumber: round,
		MatchOrder:  order,
		MatchType:   models.MatchTypeSingles,
		PlayerIDs:   []int64{int64(p1), int64(p2)},
		Status:      models.MatchStatusPending,
	}
	if scores != nil {
		s1, s2 := scores[0], scores[1]
		m.Team1Score = &s1
		m.Team2Score = &s2
		m.Status = models.MatchStatusCompleted
	}
	require.NoError(t, f.matches.Create(context.Background(), nil, m))
	return m
}

func (f *engineFixture) addDoublesMatch(t *testing.T, sessionID, round, order int, players [4]int, scores *[2]int) *models.Match {
	t.Helper()
	m := &models.Match{
		SessionID:   sessionID,
		RoundNumber: round,
		MatchOrder:  order,
		MatchType:   models.MatchTypeDoubles,
		PlayerIDs:   []int64{int64(players[0]), int64(players[1]), int64(players[2]), int64(players[3])},
		Status:      models.MatchStatusPending,
	}
	if scores != nil {
		s1, s2 := scores[0], scores[1]
		m.Team1Score = &s1
		m.Team2Score = &s2
		m.Status = models.MatchStatusCompleted
	}
	require.NoError(t, f.matches.Create(context.Background(), nil, m))
	return m
}

func (f *engineFixture) edit(sessionID, matchID, s1, s2, actingUser int, role models.UserRole) error {
	reason := "corrected scoresheet"
	return f.service.EditMatch(context.Background(), EditMatchInput{
		SessionID:  sessionID,
		MatchID:    matchID,
		Team1Score: s1,
		Team2Score: s2,
		Reason:     &reason,
		ActingUser: actingUser,
		ActingRole: role,
	})
}

func TestEditMatchFirstScoreSingles(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.addSession(t, 10)
	m := f.addSinglesMatch(t, session.ID, 1, 1, 1, 2, nil)

	require.NoError(t, f.edit(session.ID, m.ID, 3, 1, 10, models.RolePlayer))

	// Both players are new: K=40, expected 0.5, winner gains exactly 20.
	p1, err := f.singles.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1520.0, p1.Elo, 1e-9)
	assert.Equal(t, 1, p1.MatchesPlayed)
	assert.Equal(t, 1, p1.Wins)
	assert.Equal(t, 0, p1.Losses)
	assert.Equal(t, 3, p1.SetsWon)
	assert.Equal(t, 1, p1.SetsLost)

	p2, err := f.singles.Get(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1480.0, p2.Elo, 1e-9)
	assert.Equal(t, 1, p2.Losses)
	assert.Equal(t, 1, p2.SetsWon)
	assert.Equal(t, 3, p2.SetsLost)

	records, err := f.history.ListByMatch(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.InDelta(t, 1500.0, rec.EloBefore, 1e-9)
		assert.InDelta(t, rec.EloBefore+rec.EloChange, rec.EloAfter, 1e-9)
	}

	snap := f.snapshots.stored[snapshotKey{SessionID: session.ID, EntityType: models.EntityPlayerSingles, EntityID: 1}]
	assert.InDelta(t, 1520.0, snap.Elo, 1e-9)

	stored, err := f.matches.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, stored.Status)
	assert.True(t, stored.IsEdited)
	require.NotNil(t, stored.EditedBy)
	assert.Equal(t, 10, *stored.EditedBy)
	require.NotNil(t, stored.EditReason)
	assert.Equal(t, "corrected scoresheet", *stored.EditReason)

	updated, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.RecalcStatus)
	assert.Equal(t, models.RecalcStatusDone, *updated.RecalcStatus)

	assert.Equal(t, []models.RecalcStatus{models.RecalcStatusRunning, models.RecalcStatusDone}, f.notifier.statuses)
	assert.Equal(t, []int{m.ID}, f.notifier.updates)
	assert.Equal(t, 1, f.tx.calls)
}

func TestEditMatchRecomputesDownstreamMatches(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.addSession(t, 10)
	m1 := f.addSinglesMatch(t, session.ID, 1, 1, 1, 2, &[2]int{3, 0})
	m2 := f.addSinglesMatch(t, session.ID, 2, 1, 1, 3, &[2]int{3, 2})

	// Flip the first match: player 1 now lost it. The second match must be
	// replayed on top of the new intermediate state, not patched in place.
	require.NoError(t, f.edit(session.ID, m1.ID, 0, 3, 10, models.RolePlayer))

	d1 := elo.Delta(1500, 1500, elo.Loss, 0)
	afterM1 := 1500 + d1
	d2 := elo.Delta(afterM1, 1500, elo.Win, 1)

	p1, err := f.singles.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, afterM1+d2, p1.Elo, 1e-9)
	assert.Equal(t, 2, p1.MatchesPlayed)
	assert.Equal(t, 1, p1.Wins)
	assert.Equal(t, 1, p1.Losses)

	// The audit chain for player 1 must be continuous across matches.
	recsM1, err := f.history.ListByMatch(ctx, m1.ID)
	require.NoError(t, err)
	recsM2, err := f.history.ListByMatch(ctx, m2.ID)
	require.NoError(t, err)
	var afterFirst, beforeSecond float64
	for _, rec := range recsM1 {
		if rec.EntityID == 1 {
			afterFirst = rec.EloAfter
		}
	}
	for _, rec := range recsM2 {
		if rec.EntityID == 1 {
			beforeSecond = rec.EloBefore
		}
	}
	assert.InDelta(t, afterFirst, beforeSecond, 1e-9)

	p3, err := f.singles.Get(ctx, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1500+elo.Delta(1500, afterM1, elo.Loss, 0), p3.Elo, 1e-9)
}

func TestEditMatchIdempotent(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.addSession(t, 10)
	m1 := f.addSinglesMatch(t, session.ID, 1, 1, 1, 2, &[2]int{3, 1})
	f.addSinglesMatch(t, session.ID, 2, 1, 2, 3, &[2]int{1, 3})

	require.NoError(t, f.edit(session.ID, m1.ID, 2, 3, 10, models.RolePlayer))

	first := map[int]float64{}
	for _, id := range []int{1, 2, 3} {
		r, err := f.singles.Get(ctx, id)
		require.NoError(t, err)
		first[id] = r.Elo
	}
	historyCount := len(f.history.records)

	require.NoError(t, f.edit(session.ID, m1.ID, 2, 3, 10, models.RolePlayer))

	for _, id := range []int{1, 2, 3} {
		r, err := f.singles.Get(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, first[id], r.Elo, 1e-9, "player %d drifted on identical re-run", id)
	}
	assert.Equal(t, historyCount, len(f.history.records))
}

func TestEditMatchDoubles(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.addSession(t, 10)
	m := f.addDoublesMatch(t, session.ID, 1, 1, [4]int{1, 2, 3, 4}, nil)

	require.NoError(t, f.edit(session.ID, m.ID, 3, 1, 10, models.RolePlayer))

	// All four players are new: both sides average 1500 and K=40, so the
	// winning side gains 20 per player and the deltas cancel exactly.
	for _, id := range []int{1, 2} {
		r, err := f.doubles.Get(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, 1520.0, r.Elo, 1e-9)
		assert.Equal(t, 1, r.Wins)
	}
	for _, id := range []int{3, 4} {
		r, err := f.doubles.Get(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, 1480.0, r.Elo, 1e-9)
		assert.Equal(t, 1, r.Losses)
	}

	// Teams are created lazily from the canonical pair and rebuilt from 1500.
	team1, err := f.teams.GetOrCreateByPair(ctx, 2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1520.0, team1.Elo, 1e-9)
	team2, err := f.teams.GetOrCreateByPair(ctx, 3, 4)
	require.NoError(t, err)
	assert.InDelta(t, 1480.0, team2.Elo, 1e-9)

	stored, err := f.matches.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Team1ID)
	require.NotNil(t, stored.Team2ID)
	assert.Equal(t, team1.TeamID, *stored.Team1ID)
	assert.Equal(t, team2.TeamID, *stored.Team2ID)

	records, err := f.history.ListByMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, records, 6) // 2 team rows + 4 player rows

	var playerDeltaSum float64
	for _, rec := range records {
		if rec.EntityType == models.EntityPlayerDoubles {
			playerDeltaSum += rec.EloChange
		}
	}
	assert.InDelta(t, 0.0, playerDeltaSum, 4*0.01)
}

func TestEditMatchTypeIsolation(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.addSession(t, 10)
	f.addSinglesMatch(t, session.ID, 1, 1, 1, 2, &[2]int{3, 0})
	dm := f.addDoublesMatch(t, session.ID, 1, 2, [4]int{1, 2, 3, 4}, &[2]int{3, 1})

	require.NoError(t, f.edit(session.ID, dm.ID, 1, 3, 10, models.RolePlayer))

	// Editing a doubles match must not touch the singles subsystem at all.
	_, err := f.singles.Get(ctx, 1)
	assert.Error(t, err)
	for _, rec := range f.history.records {
		assert.NotEqual(t, models.EntityPlayerSingles, rec.EntityType)
	}
}

func TestEditMatchSkipsUnscoredMatches(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.addSession(t, 10)
	m1 := f.addSinglesMatch(t, session.ID, 1, 1, 1, 2, nil)
	m2 := f.addSinglesMatch(t, session.ID, 2, 1, 1, 3, nil)

	require.NoError(t, f.edit(session.ID, m1.ID, 3, 2, 10, models.RolePlayer))

	// The never-played match contributes nothing and its player is never
	// written back, even though it was seeded defensively.
	_, err := f.singles.Get(ctx, 3)
	assert.Error(t, err)

	stored, err := f.matches.GetByID(ctx, m2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusPending, stored.Status)
	assert.False(t, stored.HasScores())

	p1, err := f.singles.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p1.MatchesPlayed)
}

func TestEditMatchBaselineFromPriorSnapshot(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.addSession(t, 10)
	m := f.addSinglesMatch(t, session.ID, 1, 1, 1, 2, nil)

	// Player 1 arrives with history: the prior-session snapshot wins over
	// every other baseline source and its experience drives the K factor.
	f.snapshots.setPrior(models.EntityPlayerSingles, 1, models.RatingState{
		Elo: 1600, MatchesPlayed: 12, Wins: 8, Losses: 4,
	})

	require.NoError(t, f.edit(session.ID, m.ID, 3, 1, 10, models.RolePlayer))

	expected := 1600 + elo.Delta(1600, 1500, elo.Win, 12)
	p1, err := f.singles.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, expected, p1.Elo, 1e-9)
	assert.Equal(t, 13, p1.MatchesPlayed)
	assert.Equal(t, 9, p1.Wins)

	p2, err := f.singles.Get(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1500+elo.Delta(1500, 1600, elo.Loss, 0), p2.Elo, 1e-9)
}

func TestEditMatchConcurrentRecalcRejected(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.addSession(t, 10)
	m := f.addSinglesMatch(t, session.ID, 1, 1, 1, 2, nil)

	running := models.RecalcStatusRunning
	token := "busy"
	f.sessions.sessions[session.ID].RecalcStatus = &running
	f.sessions.sessions[session.ID].RecalcToken = &token

	err := f.edit(session.ID, m.ID, 3, 1, 10, models.RolePlayer)
	assert.ErrorIs(t, err, ErrRecalcInProgress)

	// Rejected before any side effect.
	assert.Empty(t, f.notifier.statuses)
	assert.Empty(t, f.history.records)
	_, getErr := f.singles.Get(ctx, 1)
	assert.Error(t, getErr)
}

func TestEditMatchAuthorization(t *testing.T) {
	f := newEngineFixture()
	session := f.addSession(t, 10)
	m := f.addSinglesMatch(t, session.ID, 1, 1, 1, 2, nil)

	err := f.edit(session.ID, m.ID, 3, 1, 99, models.RolePlayer)
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	// Admins can edit sessions they do not own.
	assert.NoError(t, f.edit(session.ID, m.ID, 3, 1, 99, models.RoleAdmin))
}

func TestEditMatchValidation(t *testing.T) {
	f := newEngineFixture()
	session := f.addSession(t, 10)
	other := f.addSession(t, 10)
	m := f.addSinglesMatch(t, session.ID, 1, 1, 1, 2, nil)

	assert.ErrorIs(t, f.edit(session.ID, m.ID, -1, 3, 10, models.RolePlayer), ErrInvalidScore)
	assert.ErrorIs(t, f.edit(other.ID, m.ID, 3, 1, 10, models.RolePlayer), ErrMatchNotFound)
	assert.ErrorIs(t, f.edit(999, m.ID, 3, 1, 10, models.RolePlayer), ErrSessionNotFound)
}

func TestEditMatchFailureMarksSessionFailed(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.addSession(t, 10)

	// A doubles match with a malformed roster makes the replay fail after the
	// lock was taken; the lock must still be released as failed.
	m := &models.Match{
		SessionID:   session.ID,
		RoundNumber: 1,
		MatchOrder:  1,
		MatchType:   models.MatchTypeDoubles,
		PlayerIDs:   []int64{1, 2, 3},
		Status:      models.MatchStatusPending,
	}
	require.NoError(t, f.matches.Create(ctx, nil, m))

	err := f.edit(session.ID, m.ID, 3, 1, 10, models.RolePlayer)
	require.Error(t, err)

	updated, getErr := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, getErr)
	require.NotNil(t, updated.RecalcStatus)
	assert.Equal(t, models.RecalcStatusFailed, *updated.RecalcStatus)
	assert.Equal(t, []models.RecalcStatus{models.RecalcStatusRunning, models.RecalcStatusFailed}, f.notifier.statuses)
}

func TestGuardBaselinesRejectsLostMatches(t *testing.T) {
	f := newEngineFixture()
	svc := f.service.(*recalcService)

	ledger := newRatingLedger()
	key := entityKey{Type: models.EntityPlayerSingles, ID: 7}
	ledger.seed(key, models.RatingState{Elo: 1550, MatchesPlayed: 5})
	entry := ledger.get(key, defaultRatingState())
	entry.State.MatchesPlayed = 3 // fewer than the baseline recorded
	entry.Touched = true

	err := svc.guardBaselines(1, ledger)
	assert.ErrorIs(t, err, ErrReplayInconsistent)
}
