package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Dosada05/ladder-system/models"
	"github.com/Dosada05/ladder-system/repositories"
)

// RecalcService owns the session-scoped rating recalculation: given an edit
// to one match's score it deterministically recomputes every rating side
// effect for that session — baseline selection, forward replay of all matches
// of the edited type, delta computation, bookkeeping and persistence — while
// leaving the other match type and all other sessions untouched.
type RecalcService interface {
	EditMatch(ctx context.Context, in EditMatchInput) error
}

type EditMatchInput struct {
	SessionID  int
	MatchID    int
	Team1Score int
	Team2Score int
	Reason     *string
	ActingUser int
	ActingRole models.UserRole
}

type recalcService struct {
	tx        TxRunner
	sessions  repositories.SessionRepository
	matches   repositories.MatchRepository
	teams     repositories.TeamRepository
	singles   repositories.PlayerRatingRepository
	doubles   repositories.PlayerDoublesRatingRepository
	snapshots repositories.SnapshotRepository
	history   repositories.EloHistoryRepository
	baselines BaselineLoader
	notifier  RecalcNotifier
	logger    *slog.Logger
}

func NewRecalcService(
	tx TxRunner,
	sessions repositories.SessionRepository,
	matches repositories.MatchRepository,
	teams repositories.TeamRepository,
	singles repositories.PlayerRatingRepository,
	doubles repositories.PlayerDoublesRatingRepository,
	snapshots repositories.SnapshotRepository,
	history repositories.EloHistoryRepository,
	baselines BaselineLoader,
	notifier RecalcNotifier,
	logger *slog.Logger,
) RecalcService {
	if notifier == nil {
		notifier = NoopNotifier()
	}
	return &recalcService{
		tx:        tx,
		sessions:  sessions,
		matches:   matches,
		teams:     teams,
		singles:   singles,
		doubles:   doubles,
		snapshots: snapshots,
		history:   history,
		baselines: baselines,
		notifier:  notifier,
		logger:    logger,
	}
}

func (s *recalcService) EditMatch(ctx context.Context, in EditMatchInput) error {
	// Валидация и авторизация — до захвата блокировки, без изменения
	// состояния сессии.
	if in.Team1Score < 0 || in.Team2Score < 0 {
		return ErrInvalidScore
	}

	session, err := s.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to load session %d: %w", in.SessionID, err)
	}

	if session.CreatedBy != in.ActingUser && in.ActingRole != models.RoleAdmin {
		return ErrForbiddenOperation
	}

	match, err := s.matches.GetByID(ctx, in.MatchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("failed to load match %d: %w", in.MatchID, err)
	}
	if match.SessionID != in.SessionID {
		return ErrMatchNotFound
	}

	token, err := newRecalcToken()
	if err != nil {
		return fmt.Errorf("failed to generate recalc token: %w", err)
	}

	if err := s.sessions.TryStartRecalc(ctx, in.SessionID, token); err != nil {
		if errors.Is(err, repositories.ErrRecalcAlreadyRunning) {
			return ErrRecalcInProgress
		}
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to acquire recalc lock: %w", err)
	}
	s.notifier.RecalcStatusChanged(in.SessionID, models.RecalcStatusRunning)

	runErr := s.recalculate(ctx, session, match, in)

	final := models.RecalcStatusDone
	if runErr != nil {
		final = models.RecalcStatusFailed
	}
	// Освобождение блокировки — best-effort: сессия не должна навсегда
	// остаться в running, но и повторять release бесконечно нельзя.
	if relErr := s.sessions.FinishRecalc(ctx, in.SessionID, token, final); relErr != nil {
		s.logger.Error("failed to release recalc lock",
			slog.Int("session_id", in.SessionID),
			slog.String("status", string(final)),
			slog.Any("error", relErr))
	}
	s.notifier.RecalcStatusChanged(in.SessionID, final)

	return runErr
}

func (s *recalcService) recalculate(ctx context.Context, session *models.Session, edited *models.Match, in EditMatchInput) error {
	allMatches, err := s.matches.ListBySession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to list session matches: %w", err)
	}

	// Only matches of the edited type are replayed; the other type is a
	// fully independent rating subsystem and stays untouched.
	editedType := edited.MatchType
	replayMatches := make([]*models.Match, 0, len(allMatches))
	for _, m := range allMatches {
		if m.MatchType == editedType {
			replayMatches = append(replayMatches, m)
		}
	}

	// Preserve current scores before any mutation: the edited row will be
	// overwritten and the others must retain their stored results.
	preserved := make(map[int][2]int, len(replayMatches))
	for _, m := range replayMatches {
		if m.HasScores() {
			preserved[m.ID] = [2]int{*m.Team1Score, *m.Team2Score}
		}
	}

	playerIDs := collectPlayerIDs(replayMatches)

	var matchTeams map[int][2]int
	if editedType == models.MatchTypeDoubles {
		matchTeams, err = s.resolveTeams(ctx, replayMatches)
		if err != nil {
			return err
		}
	}

	playerEntity := models.EntityPlayerSingles
	entityTypes := []models.EntityType{models.EntityPlayerSingles}
	if editedType == models.MatchTypeDoubles {
		playerEntity = models.EntityPlayerDoubles
		entityTypes = []models.EntityType{models.EntityPlayerDoubles, models.EntityTeam}
	}

	// История читается до удаления: слой обратного вычисления baseline
	// зависит от этих строк.
	sessionHistory, err := s.history.ListBySessionAndType(ctx, session.ID, playerEntity)
	if err != nil {
		return fmt.Errorf("failed to read session elo history: %w", err)
	}

	playerBaselines, err := s.baselines.LoadBaselines(ctx, BaselineInput{
		SessionID:      session.ID,
		EntityType:     playerEntity,
		PlayerIDs:      playerIDs,
		SessionMatches: replayMatches,
		SessionHistory: sessionHistory,
	})
	if err != nil {
		return fmt.Errorf("failed to load baselines: %w", err)
	}

	ledger := newRatingLedger()
	for playerID, baseline := range playerBaselines {
		ledger.seed(entityKey{Type: playerEntity, ID: playerID}, baseline)
	}

	records, err := s.replay(ctx, session, replayMatches, edited.ID, preserved, matchTeams, ledger, in)
	if err != nil {
		return err
	}

	if err := s.guardBaselines(session.ID, ledger); err != nil {
		return err
	}

	replayIDs := make([]int, len(replayMatches))
	for i, m := range replayMatches {
		replayIDs[i] = m.ID
	}

	// Финальная запись: рейтинги, снимки и история — атомарно. Пишутся
	// только сущности, которые реально участвовали в реплее.
	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.history.DeleteByMatchIDs(ctx, exec, replayIDs, entityTypes); err != nil {
			return err
		}
		for _, key := range ledger.touched() {
			entry := ledger.entries[key]
			if err := s.persistEntity(ctx, exec, key, entry.State); err != nil {
				return err
			}
			snapshot := &models.SessionRatingSnapshot{
				SessionID:   session.ID,
				EntityType:  key.Type,
				EntityID:    key.ID,
				RatingState: entry.State,
			}
			if err := s.snapshots.Upsert(ctx, exec, snapshot); err != nil {
				return err
			}
		}
		return s.history.InsertBatch(ctx, exec, records)
	})
	if err != nil {
		return fmt.Errorf("failed to persist recalculation for session %d: %w", session.ID, err)
	}

	// Консистентность перечитыванием — сигнальный провод, не гейт: любое
	// расхождение логируется, но пересчёт уже состоялся.
	s.verifyPersisted(ctx, session.ID, ledger)

	return nil
}

func (s *recalcService) persistEntity(ctx context.Context, exec repositories.SQLExecutor, key entityKey, state models.RatingState) error {
	switch key.Type {
	case models.EntityPlayerSingles:
		return s.singles.Upsert(ctx, exec, &models.PlayerRating{PlayerID: key.ID, RatingState: state})
	case models.EntityPlayerDoubles:
		return s.doubles.Upsert(ctx, exec, &models.PlayerDoublesRating{PlayerID: key.ID, RatingState: state})
	case models.EntityTeam:
		return s.teams.Upsert(ctx, exec, &models.TeamRating{TeamID: key.ID, RatingState: state})
	default:
		return fmt.Errorf("unknown entity type %q", key.Type)
	}
}

// guardBaselines aborts the whole write when a replayed entity ended up with
// fewer matches than its baseline recorded — that means matches were lost.
// The comparison is against the captured baseline, not the live table: the
// live value may itself have been the source of the reversed baseline.
func (s *recalcService) guardBaselines(sessionID int, ledger *ratingLedger) error {
	for _, key := range ledger.touched() {
		entry := ledger.entries[key]
		if entry.State.MatchesPlayed < entry.Baseline.MatchesPlayed {
			s.logger.Error("replay lost matches for entity",
				slog.Int("session_id", sessionID),
				slog.String("entity_type", string(key.Type)),
				slog.Int("entity_id", key.ID),
				slog.Int("baseline_matches", entry.Baseline.MatchesPlayed),
				slog.Int("replayed_matches", entry.State.MatchesPlayed))
			return fmt.Errorf("%w: %s %d has %d matches, baseline had %d",
				ErrReplayInconsistent, key.Type, key.ID,
				entry.State.MatchesPlayed, entry.Baseline.MatchesPlayed)
		}
	}
	return nil
}

func (s *recalcService) verifyPersisted(ctx context.Context, sessionID int, ledger *ratingLedger) {
	for _, key := range ledger.touched() {
		entry := ledger.entries[key]
		var persisted models.RatingState
		var err error
		switch key.Type {
		case models.EntityPlayerSingles:
			var r *models.PlayerRating
			if r, err = s.singles.Get(ctx, key.ID); err == nil {
				persisted = r.RatingState
			}
		case models.EntityPlayerDoubles:
			var r *models.PlayerDoublesRating
			if r, err = s.doubles.Get(ctx, key.ID); err == nil {
				persisted = r.RatingState
			}
		case models.EntityTeam:
			var r *models.TeamRating
			if r, err = s.teams.GetByID(ctx, key.ID); err == nil {
				persisted = r.RatingState
			}
		}
		if err != nil {
			s.logger.Warn("read-back verification failed",
				slog.Int("session_id", sessionID),
				slog.String("entity_type", string(key.Type)),
				slog.Int("entity_id", key.ID),
				slog.Any("error", err))
			continue
		}
		if math.Abs(persisted.Elo-entry.State.Elo) > 1e-6 || persisted.MatchesPlayed != entry.State.MatchesPlayed {
			s.logger.Warn("persisted rating diverges from computed state",
				slog.Int("session_id", sessionID),
				slog.String("entity_type", string(key.Type)),
				slog.Int("entity_id", key.ID),
				slog.Float64("computed_elo", entry.State.Elo),
				slog.Float64("persisted_elo", persisted.Elo))
		}
	}
}

// resolveTeams maps every replayed doubles match to its two stable team ids,
// creating teams lazily and persisting ids the match rows were missing.
func (s *recalcService) resolveTeams(ctx context.Context, replayMatches []*models.Match) (map[int][2]int, error) {
	matchTeams := make(map[int][2]int, len(replayMatches))
	for _, m := range replayMatches {
		if len(m.PlayerIDs) != 4 {
			return nil, fmt.Errorf("doubles match %d has %d players, want 4", m.ID, len(m.PlayerIDs))
		}
		team1, err := s.teams.GetOrCreateByPair(ctx, int(m.PlayerIDs[0]), int(m.PlayerIDs[1]))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve team for match %d side 1: %w", m.ID, err)
		}
		team2, err := s.teams.GetOrCreateByPair(ctx, int(m.PlayerIDs[2]), int(m.PlayerIDs[3]))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve team for match %d side 2: %w", m.ID, err)
		}
		matchTeams[m.ID] = [2]int{team1.TeamID, team2.TeamID}

		if m.Team1ID == nil || m.Team2ID == nil || *m.Team1ID != team1.TeamID || *m.Team2ID != team2.TeamID {
			if err := s.matches.UpdateTeams(ctx, m.ID, team1.TeamID, team2.TeamID); err != nil {
				return nil, fmt.Errorf("failed to store team ids for match %d: %w", m.ID, err)
			}
		}
	}
	return matchTeams, nil
}

func collectPlayerIDs(matches []*models.Match) []int {
	seen := make(map[int]struct{})
	ids := make([]int, 0)
	for _, m := range matches {
		for _, id := range m.PlayerIDs {
			if _, ok := seen[int(id)]; !ok {
				seen[int(id)] = struct{}{}
				ids = append(ids, int(id))
			}
		}
	}
	return ids
}

func newRecalcToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
