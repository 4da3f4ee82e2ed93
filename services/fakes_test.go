package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/ladder-system/models"
	"github.com/Dosada05/ladder-system/repositories"
)

// In-memory repository doubles for the recalculation engine tests. They keep
// the same contracts as the postgres implementations (sentinel errors, replay
// ordering, CAS lock semantics) without a database.

type fakeTxRunner struct {
	calls int
}

func (f *fakeTxRunner) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	f.calls++
	return fn(nil)
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[int]*models.Session
	finished []models.RecalcStatus
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[int]*models.Session)}
}

func (f *fakeSessionRepo) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session.ID = len(f.sessions) + 1
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) GetByID(ctx context.Context, id int) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionRepo) List(ctx context.Context, limit, offset int) ([]*models.Session, error) {
	return nil, nil
}

func (f *fakeSessionRepo) UpdateStatus(ctx context.Context, id int, status models.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return repositories.ErrSessionNotFound
	}
	s.Status = status
	return nil
}

func (f *fakeSessionRepo) TryStartRecalc(ctx context.Context, id int, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return repositories.ErrSessionNotFound
	}
	if s.RecalcStatus != nil && *s.RecalcStatus == models.RecalcStatusRunning {
		return repositories.ErrRecalcAlreadyRunning
	}
	running := models.RecalcStatusRunning
	now := time.Now()
	s.RecalcStatus = &running
	s.RecalcToken = &token
	s.RecalcStartedAt = &now
	s.RecalcFinishedAt = nil
	return nil
}

func (f *fakeSessionRepo) FinishRecalc(ctx context.Context, id int, token string, status models.RecalcStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return repositories.ErrSessionNotFound
	}
	if s.RecalcToken == nil || *s.RecalcToken != token {
		return repositories.ErrSessionNotFound
	}
	now := time.Now()
	s.RecalcStatus = &status
	s.RecalcFinishedAt = &now
	f.finished = append(f.finished, status)
	return nil
}

type fakeMatchRepo struct {
	mu      sync.Mutex
	matches map[int]*models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[int]*models.Match)}
}

func (f *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if match.ID == 0 {
		match.ID = len(f.matches) + 1
	}
	f.matches[match.ID] = match
	return nil
}

func (f *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMatchRepo) ListBySession(ctx context.Context, sessionID int) ([]*models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Match
	for _, m := range f.matches {
		if m.SessionID == sessionID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoundNumber != out[j].RoundNumber {
			return out[i].RoundNumber < out[j].RoundNumber
		}
		if out[i].MatchOrder != out[j].MatchOrder {
			return out[i].MatchOrder < out[j].MatchOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeMatchRepo) UpdateResult(ctx context.Context, id int, team1Score, team2Score int, status models.MatchStatus, edited bool, editedBy *int, editedAt *time.Time, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	s1, s2 := team1Score, team2Score
	m.Team1Score = &s1
	m.Team2Score = &s2
	m.Status = status
	m.IsEdited = edited
	m.EditedBy = editedBy
	m.EditedAt = editedAt
	m.EditReason = reason
	return nil
}

func (f *fakeMatchRepo) UpdateTeams(ctx context.Context, id int, team1ID, team2ID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	t1, t2 := team1ID, team2ID
	m.Team1ID = &t1
	m.Team2ID = &t2
	return nil
}

type fakeTeamRepo struct {
	mu     sync.Mutex
	teams  map[int]*models.TeamRating
	byPair map[[2]int]int
	nextID int
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{
		teams:  make(map[int]*models.TeamRating),
		byPair: make(map[[2]int]int),
		nextID: 1,
	}
}

func (f *fakeTeamRepo) GetOrCreateByPair(ctx context.Context, playerA, playerB int) (*models.TeamRating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	low, high := playerA, playerB
	if low > high {
		low, high = high, low
	}
	if id, ok := f.byPair[[2]int{low, high}]; ok {
		cp := *f.teams[id]
		return &cp, nil
	}
	team := &models.TeamRating{
		TeamID:      f.nextID,
		PlayerLowID: low,
		PlayerHiID:  high,
		RatingState: models.RatingState{Elo: 1500},
	}
	f.nextID++
	f.teams[team.TeamID] = team
	f.byPair[[2]int{low, high}] = team.TeamID
	cp := *team
	return &cp, nil
}

func (f *fakeTeamRepo) GetByID(ctx context.Context, teamID int) (*models.TeamRating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	team, ok := f.teams[teamID]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	cp := *team
	return &cp, nil
}

func (f *fakeTeamRepo) Upsert(ctx context.Context, exec repositories.SQLExecutor, team *models.TeamRating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.teams[team.TeamID]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	existing.RatingState = team.RatingState
	return nil
}

func (f *fakeTeamRepo) ListTop(ctx context.Context, limit int) ([]*models.TeamRating, error) {
	return nil, nil
}

type fakeRatingRepo struct {
	mu      sync.Mutex
	ratings map[int]models.RatingState
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{ratings: make(map[int]models.RatingState)}
}

func (f *fakeRatingRepo) Get(ctx context.Context, playerID int) (*models.PlayerRating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.ratings[playerID]
	if !ok {
		return nil, repositories.ErrRatingNotFound
	}
	return &models.PlayerRating{PlayerID: playerID, RatingState: state}, nil
}

func (f *fakeRatingRepo) Upsert(ctx context.Context, exec repositories.SQLExecutor, rating *models.PlayerRating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings[rating.PlayerID] = rating.RatingState
	return nil
}

func (f *fakeRatingRepo) ListTop(ctx context.Context, limit int) ([]*models.PlayerRating, error) {
	return nil, nil
}

type fakeDoublesRatingRepo struct {
	mu      sync.Mutex
	ratings map[int]models.RatingState
}

func newFakeDoublesRatingRepo() *fakeDoublesRatingRepo {
	return &fakeDoublesRatingRepo{ratings: make(map[int]models.RatingState)}
}

func (f *fakeDoublesRatingRepo) Get(ctx context.Context, playerID int) (*models.PlayerDoublesRating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.ratings[playerID]
	if !ok {
		return nil, repositories.ErrRatingNotFound
	}
	return &models.PlayerDoublesRating{PlayerID: playerID, RatingState: state}, nil
}

func (f *fakeDoublesRatingRepo) Upsert(ctx context.Context, exec repositories.SQLExecutor, rating *models.PlayerDoublesRating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings[rating.PlayerID] = rating.RatingState
	return nil
}

func (f *fakeDoublesRatingRepo) ListTop(ctx context.Context, limit int) ([]*models.PlayerDoublesRating, error) {
	return nil, nil
}

type snapshotKey struct {
	SessionID  int
	EntityType models.EntityType
	EntityID   int
}

type fakeSnapshotRepo struct {
	mu sync.Mutex

	// prior simulates "latest snapshot from a completed earlier session".
	prior map[snapshotKey]models.RatingState

	stored map[snapshotKey]models.RatingState
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{
		prior:  make(map[snapshotKey]models.RatingState),
		stored: make(map[snapshotKey]models.RatingState),
	}
}

func (f *fakeSnapshotRepo) setPrior(entityType models.EntityType, entityID int, state models.RatingState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prior[snapshotKey{EntityType: entityType, EntityID: entityID}] = state
}

func (f *fakeSnapshotRepo) GetLatestBefore(ctx context.Context, entityType models.EntityType, entityID, sessionID int) (*models.SessionRatingSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.prior[snapshotKey{EntityType: entityType, EntityID: entityID}]
	if !ok {
		return nil, repositories.ErrSnapshotNotFound
	}
	return &models.SessionRatingSnapshot{
		EntityType:  entityType,
		EntityID:    entityID,
		RatingState: state,
	}, nil
}

func (f *fakeSnapshotRepo) GetForSession(ctx context.Context, sessionID int, entityType models.EntityType, entityID int) (*models.SessionRatingSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := snapshotKey{SessionID: sessionID, EntityType: entityType, EntityID: entityID}
	state, ok := f.stored[key]
	if !ok {
		return nil, repositories.ErrSnapshotNotFound
	}
	return &models.SessionRatingSnapshot{
		SessionID:   sessionID,
		EntityType:  entityType,
		EntityID:    entityID,
		RatingState: state,
	}, nil
}

func (f *fakeSnapshotRepo) Upsert(ctx context.Context, exec repositories.SQLExecutor, snapshot *models.SessionRatingSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := snapshotKey{SessionID: snapshot.SessionID, EntityType: snapshot.EntityType, EntityID: snapshot.EntityID}
	f.stored[key] = snapshot.RatingState
	return nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	records []*models.MatchEloHistory
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{}
}

func (f *fakeHistoryRepo) ListBySessionAndType(ctx context.Context, sessionID int, entityType models.EntityType) ([]*models.MatchEloHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MatchEloHistory
	for _, rec := range f.records {
		if rec.SessionID == sessionID && rec.EntityType == entityType {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) ListByMatch(ctx context.Context, matchID int) ([]*models.MatchEloHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MatchEloHistory
	for _, rec := range f.records {
		if rec.MatchID == matchID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeHistoryRepo) DeleteByMatchIDs(ctx context.Context, exec repositories.SQLExecutor, matchIDs []int, entityTypes []models.EntityType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[int]bool, len(matchIDs))
	for _, id := range matchIDs {
		ids[id] = true
	}
	types := make(map[models.EntityType]bool, len(entityTypes))
	for _, et := range entityTypes {
		types[et] = true
	}
	kept := f.records[:0]
	for _, rec := range f.records {
		if ids[rec.MatchID] && types[rec.EntityType] {
			continue
		}
		kept = append(kept, rec)
	}
	f.records = kept
	return nil
}

func (f *fakeHistoryRepo) InsertBatch(ctx context.Context, exec repositories.SQLExecutor, records []*models.MatchEloHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range records {
		cp := *rec
		f.records = append(f.records, &cp)
	}
	return nil
}

type captureNotifier struct {
	mu       sync.Mutex
	statuses []models.RecalcStatus
	updates  []int
}

func (n *captureNotifier) RecalcStatusChanged(sessionID int, status models.RecalcStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
}

func (n *captureNotifier) MatchUpdated(sessionID int, match *models.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, match.ID)
}
