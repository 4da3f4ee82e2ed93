package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/ladder-system/models"
)

var ErrTeamNotFound = errors.New("team not found")

// TeamRepository is the team identity resolver plus the team rating table.
// Team identity is the canonical (sorted) unordered pair of player ids and
// is stable across sessions.
type TeamRepository interface {
	// GetOrCreateByPair canonicalizes the pair and returns the existing team
	// or lazily creates one at the default rating. Safe under concurrent
	// calls for the same pair: creation relies on the unique constraint on
	// (player_low_id, player_high_id), not on read-then-write.
	GetOrCreateByPair(ctx context.Context, playerA, playerB int) (*models.TeamRating, error)

	GetByID(ctx context.Context, teamID int) (*models.TeamRating, error)
	Upsert(ctx context.Context, exec SQLExecutor, team *models.TeamRating) error
	ListTop(ctx context.Context, limit int) ([]*models.TeamRating, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

// CanonicalPair sorts an unordered player pair into (low, high).
func CanonicalPair(playerA, playerB int) (int, int) {
	if playerA > playerB {
		return playerB, playerA
	}
	return playerA, playerB
}

const teamColumns = `team_id, player_low_id, player_high_id, elo, matches_played, wins, losses, draws, sets_won, sets_lost`

func (r *postgresTeamRepository) GetOrCreateByPair(ctx context.Context, playerA, playerB int) (*models.TeamRating, error) {
	low, high := CanonicalPair(playerA, playerB)

	team, err := r.getByPair(ctx, low, high)
	if err == nil {
		return team, nil
	}
	if !errors.Is(err, ErrTeamNotFound) {
		return nil, err
	}

	insert := `
		INSERT INTO team_ratings
			(player_low_id, player_high_id, elo, matches_played, wins, losses, draws, sets_won, sets_lost)
		VALUES ($1, $2, 1500, 0, 0, 0, 0, 0, 0)
		RETURNING ` + teamColumns

	team = &models.TeamRating{}
	err = r.db.QueryRowContext(ctx, insert, low, high).Scan(
		&team.TeamID,
		&team.PlayerLowID,
		&team.PlayerHiID,
		&team.Elo,
		&team.MatchesPlayed,
		&team.Wins,
		&team.Losses,
		&team.Draws,
		&team.SetsWon,
		&team.SetsLost,
	)
	if err != nil {
		// Проигрыш гонки за создание — пара уже вставлена параллельным
		// вызовом, перечитываем её.
		if isUniqueViolation(err, "team_ratings_player_low_id_player_high_id_key") {
			return r.getByPair(ctx, low, high)
		}
		return nil, fmt.Errorf("failed to insert team (%d,%d): %w", low, high, err)
	}
	return team, nil
}

func (r *postgresTeamRepository) getByPair(ctx context.Context, low, high int) (*models.TeamRating, error) {
	query := `SELECT ` + teamColumns + ` FROM team_ratings WHERE player_low_id = $1 AND player_high_id = $2`
	return r.scanTeam(r.db.QueryRowContext(ctx, query, low, high))
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, teamID int) (*models.TeamRating, error) {
	query := `SELECT ` + teamColumns + ` FROM team_ratings WHERE team_id = $1`
	return r.scanTeam(r.db.QueryRowContext(ctx, query, teamID))
}

func (r *postgresTeamRepository) Upsert(ctx context.Context, exec SQLExecutor, team *models.TeamRating) error {
	query := `
		UPDATE team_ratings
		SET elo = $2, matches_played = $3, wins = $4, losses = $5, draws = $6,
		    sets_won = $7, sets_lost = $8
		WHERE team_id = $1`

	result, err := exec.ExecContext(ctx, query,
		team.TeamID,
		team.Elo,
		team.MatchesPlayed,
		team.Wins,
		team.Losses,
		team.Draws,
		team.SetsWon,
		team.SetsLost,
	)
	if err != nil {
		return fmt.Errorf("failed to update team rating %d: %w", team.TeamID, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) ListTop(ctx context.Context, limit int) ([]*models.TeamRating, error) {
	query := `SELECT ` + teamColumns + ` FROM team_ratings ORDER BY elo DESC, team_id ASC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query team ratings: %w", err)
	}
	defer rows.Close()

	teams := make([]*models.TeamRating, 0)
	for rows.Next() {
		var team models.TeamRating
		if scanErr := rows.Scan(
			&team.TeamID,
			&team.PlayerLowID,
			&team.PlayerHiID,
			&team.Elo,
			&team.MatchesPlayed,
			&team.Wins,
			&team.Losses,
			&team.Draws,
			&team.SetsWon,
			&team.SetsLost,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan team rating row: %w", scanErr)
		}
		teams = append(teams, &team)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during team rating rows iteration: %w", err)
	}
	return teams, nil
}

func (r *postgresTeamRepository) scanTeam(row *sql.Row) (*models.TeamRating, error) {
	team := &models.TeamRating{}
	err := row.Scan(
		&team.TeamID,
		&team.PlayerLowID,
		&team.PlayerHiID,
		&team.Elo,
		&team.MatchesPlayed,
		&team.Wins,
		&team.Losses,
		&team.Draws,
		&team.SetsWon,
		&team.SetsLost,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to scan team rating: %w", err)
	}
	return team, nil
}
