package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Dosada05/ladder-system/elo"
	"github.com/Dosada05/ladder-system/models"
)

// playerDoublesBalanceTolerance bounds how far the two sides' player-doubles
// deltas may drift from cancelling out before the run is treated as defective.
const playerDoublesBalanceTolerance = 0.01

// replay walks the session's matches of the edited type strictly in
// (round_number, match_order) order, mutating the in-memory ledger and
// accumulating the audit trail. Match score/status writes happen per match
// during the walk (they are idempotent to retry); everything else stays in
// memory until the final transactional commit.
func (s *recalcService) replay(
	ctx context.Context,
	session *models.Session,
	replayMatches []*models.Match,
	editedMatchID int,
	preserved map[int][2]int,
	matchTeams map[int][2]int,
	ledger *ratingLedger,
	in EditMatchInput,
) ([]*models.MatchEloHistory, error) {
	records := make([]*models.MatchEloHistory, 0, len(replayMatches)*2)
	visited := make(map[int]bool, len(replayMatches))

	for _, m := range replayMatches {
		if visited[m.ID] {
			// Повторный id — внутренняя ошибка консистентности: логируем и
			// пропускаем, чтобы не применить матч дважды.
			s.logger.Error("duplicate match id during replay, skipping",
				slog.Int("session_id", session.ID),
				slog.Int("match_id", m.ID),
				slog.Any("error", ErrDuplicateMatchInReplay))
			continue
		}
		visited[m.ID] = true

		score1, score2, ok := resolveScores(m, editedMatchID, in, preserved)
		if !ok {
			// Never played, contributes nothing.
			continue
		}

		var matchRecords []*models.MatchEloHistory
		var err error
		switch m.MatchType {
		case models.MatchTypeSingles:
			matchRecords, err = s.applySingles(m, score1, score2, ledger)
		case models.MatchTypeDoubles:
			matchRecords, err = s.applyDoubles(m, score1, score2, matchTeams[m.ID], ledger)
		default:
			err = fmt.Errorf("match %d has unsupported type %q", m.ID, m.MatchType)
		}
		if err != nil {
			return nil, err
		}
		records = append(records, matchRecords...)

		if err := s.persistMatchResult(ctx, m, score1, score2, editedMatchID, in); err != nil {
			return nil, err
		}
		s.notifier.MatchUpdated(session.ID, m)
	}

	return records, nil
}

func resolveScores(m *models.Match, editedMatchID int, in EditMatchInput, preserved map[int][2]int) (int, int, bool) {
	if m.ID == editedMatchID {
		return in.Team1Score, in.Team2Score, true
	}
	scores, ok := preserved[m.ID]
	if !ok {
		return 0, 0, false
	}
	return scores[0], scores[1], true
}

func (s *recalcService) applySingles(m *models.Match, score1, score2 int, ledger *ratingLedger) ([]*models.MatchEloHistory, error) {
	if len(m.PlayerIDs) != 2 {
		return nil, fmt.Errorf("singles match %d has %d players, want 2", m.ID, len(m.PlayerIDs))
	}
	p1 := int(m.PlayerIDs[0])
	p2 := int(m.PlayerIDs[1])

	entry1 := ledger.get(entityKey{Type: models.EntityPlayerSingles, ID: p1}, defaultRatingState())
	entry2 := ledger.get(entityKey{Type: models.EntityPlayerSingles, ID: p2}, defaultRatingState())

	result1, result2 := elo.ResultsFromScores(score1, score2)

	// Deltas are computed from both pre-match states before either side is
	// mutated. Each side uses its own experience count for K.
	delta1 := elo.Delta(entry1.State.Elo, entry2.State.Elo, result1, entry1.State.MatchesPlayed)
	delta2 := elo.Delta(entry2.State.Elo, entry1.State.Elo, result2, entry2.State.MatchesPlayed)

	records := []*models.MatchEloHistory{
		historyRecord(m, models.EntityPlayerSingles, p1, entry1.State.Elo, delta1),
		historyRecord(m, models.EntityPlayerSingles, p2, entry2.State.Elo, delta2),
	}

	applyResult(entry1, delta1, result1, score1, score2)
	applyResult(entry2, delta2, result2, score2, score1)

	return records, nil
}

func (s *recalcService) applyDoubles(m *models.Match, score1, score2 int, teams [2]int, ledger *ratingLedger) ([]*models.MatchEloHistory, error) {
	if len(m.PlayerIDs) != 4 {
		return nil, fmt.Errorf("doubles match %d has %d players, want 4", m.ID, len(m.PlayerIDs))
	}

	result1, result2 := elo.ResultsFromScores(score1, score2)

	// Team ratings are deliberately session-scoped: each recalculation
	// rebuilds them from 1500 using only this session's doubles matches,
	// never from the durable team table. This avoids double-counting a
	// team's historical rating with session-local replay.
	team1 := ledger.get(entityKey{Type: models.EntityTeam, ID: teams[0]}, defaultRatingState())
	team2 := ledger.get(entityKey{Type: models.EntityTeam, ID: teams[1]}, defaultRatingState())

	teamDelta1 := elo.Delta(team1.State.Elo, team2.State.Elo, result1, team1.State.MatchesPlayed)
	teamDelta2 := elo.Delta(team2.State.Elo, team1.State.Elo, result2, team2.State.MatchesPlayed)

	records := []*models.MatchEloHistory{
		historyRecord(m, models.EntityTeam, teams[0], team1.State.Elo, teamDelta1),
		historyRecord(m, models.EntityTeam, teams[1], team2.State.Elo, teamDelta2),
	}

	applyResult(team1, teamDelta1, result1, score1, score2)
	applyResult(team2, teamDelta2, result2, score2, score1)

	// Player-doubles: each side's delta is derived from the side's average
	// doubles elo and experience, then applied identically to both
	// teammates. K comes from the combined experience of all four players
	// so the two sides' deltas cancel exactly.
	side1 := [2]*ledgerEntry{
		ledger.get(entityKey{Type: models.EntityPlayerDoubles, ID: int(m.PlayerIDs[0])}, defaultRatingState()),
		ledger.get(entityKey{Type: models.EntityPlayerDoubles, ID: int(m.PlayerIDs[1])}, defaultRatingState()),
	}
	side2 := [2]*ledgerEntry{
		ledger.get(entityKey{Type: models.EntityPlayerDoubles, ID: int(m.PlayerIDs[2])}, defaultRatingState()),
		ledger.get(entityKey{Type: models.EntityPlayerDoubles, ID: int(m.PlayerIDs[3])}, defaultRatingState()),
	}

	avg1 := (side1[0].State.Elo + side1[1].State.Elo) / 2.0
	avg2 := (side2[0].State.Elo + side2[1].State.Elo) / 2.0
	totalExperience := side1[0].State.MatchesPlayed + side1[1].State.MatchesPlayed +
		side2[0].State.MatchesPlayed + side2[1].State.MatchesPlayed
	k := elo.KFactor(int(math.Round(float64(totalExperience) / 4.0)))

	pairDelta1 := elo.DeltaWithK(avg1, avg2, result1, k)
	pairDelta2 := elo.DeltaWithK(avg2, avg1, result2, k)

	if math.Abs(pairDelta1+pairDelta2) > playerDoublesBalanceTolerance {
		return nil, fmt.Errorf("%w: match %d, sum %.6f",
			ErrDoublesDeltaImbalance, m.ID, pairDelta1+pairDelta2)
	}

	for i, entry := range side1 {
		records = append(records, historyRecord(m, models.EntityPlayerDoubles, int(m.PlayerIDs[i]), entry.State.Elo, pairDelta1))
	}
	for i, entry := range side2 {
		records = append(records, historyRecord(m, models.EntityPlayerDoubles, int(m.PlayerIDs[i+2]), entry.State.Elo, pairDelta2))
	}

	for _, entry := range side1 {
		applyResult(entry, pairDelta1, result1, score1, score2)
	}
	for _, entry := range side2 {
		applyResult(entry, pairDelta2, result2, score2, score1)
	}

	return records, nil
}

// applyResult mutates one ledger entry with a finished match's outcome.
// Raw score values accumulate into sets_won / sets_lost — this convention is
// held constant across the whole engine.
func applyResult(entry *ledgerEntry, delta float64, result elo.Result, ownScore, oppScore int) {
	entry.State.Elo += delta
	entry.State.MatchesPlayed++
	switch result {
	case elo.Win:
		entry.State.Wins++
	case elo.Loss:
		entry.State.Losses++
	default:
		entry.State.Draws++
	}
	entry.State.SetsWon += ownScore
	entry.State.SetsLost += oppScore
	entry.Touched = true
}

func historyRecord(m *models.Match, entityType models.EntityType, entityID int, eloBefore, delta float64) *models.MatchEloHistory {
	return &models.MatchEloHistory{
		MatchID:    m.ID,
		SessionID:  m.SessionID,
		EntityType: entityType,
		EntityID:   entityID,
		EloBefore:  eloBefore,
		EloAfter:   eloBefore + delta,
		EloChange:  delta,
	}
}

func (s *recalcService) persistMatchResult(ctx context.Context, m *models.Match, score1, score2 int, editedMatchID int, in EditMatchInput) error {
	edited := m.IsEdited
	editedBy := m.EditedBy
	editedAt := m.EditedAt
	reason := m.EditReason
	if m.ID == editedMatchID {
		now := time.Now().UTC()
		edited = true
		editedBy = &in.ActingUser
		editedAt = &now
		reason = in.Reason
	}

	err := s.matches.UpdateResult(ctx, m.ID, score1, score2, models.MatchStatusCompleted, edited, editedBy, editedAt, reason)
	if err != nil {
		return fmt.Errorf("failed to persist result for match %d: %w", m.ID, err)
	}

	m.Team1Score = &score1
	m.Team2Score = &score2
	m.Status = models.MatchStatusCompleted
	m.IsEdited = edited
	m.EditedBy = editedBy
	m.EditedAt = editedAt
	m.EditReason = reason
	return nil
}
