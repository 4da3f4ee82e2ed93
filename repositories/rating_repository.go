package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/ladder-system/models"
)

var ErrRatingNotFound = errors.New("rating not found")

type PlayerRatingRepository interface {
	Get(ctx context.Context, playerID int) (*models.PlayerRating, error)

	// Upsert writes the final ledger state for a player. Used only by the
	// persistence step of a recalculation, scoped to replayed entities.
	Upsert(ctx context.Context, exec SQLExecutor, rating *models.PlayerRating) error

	ListTop(ctx context.Context, limit int) ([]*models.PlayerRating, error)
}

type postgresPlayerRatingRepository struct {
	db *sql.DB
}

func NewPostgresPlayerRatingRepository(db *sql.DB) PlayerRatingRepository {
	return &postgresPlayerRatingRepository{db: db}
}

func (r *postgresPlayerRatingRepository) Get(ctx context.Context, playerID int) (*models.PlayerRating, error) {
	query := `
		SELECT player_id, elo, matches_played, wins, losses, draws, sets_won, sets_lost
		FROM player_ratings
		WHERE player_id = $1`

	rating := &models.PlayerRating{}
	err := r.db.QueryRowContext(ctx, query, playerID).Scan(
		&rating.PlayerID,
		&rating.Elo,
		&rating.MatchesPlayed,
		&rating.Wins,
		&rating.Losses,
		&rating.Draws,
		&rating.SetsWon,
		&rating.SetsLost,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRatingNotFound
		}
		return nil, fmt.Errorf("failed to scan player rating %d: %w", playerID, err)
	}
	return rating, nil
}

func (r *postgresPlayerRatingRepository) Upsert(ctx context.Context, exec SQLExecutor, rating *models.PlayerRating) error {
	query := `
		INSERT INTO player_ratings
			(player_id, elo, matches_played, wins, losses, draws, sets_won, sets_lost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (player_id) DO UPDATE SET
			elo = EXCLUDED.elo,
			matches_played = EXCLUDED.matches_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			sets_won = EXCLUDED.sets_won,
			sets_lost = EXCLUDED.sets_lost`

	_, err := exec.ExecContext(ctx, query,
		rating.PlayerID,
		rating.Elo,
		rating.MatchesPlayed,
		rating.Wins,
		rating.Losses,
		rating.Draws,
		rating.SetsWon,
		rating.SetsLost,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert player rating %d: %w", rating.PlayerID, err)
	}
	return nil
}

func (r *postgresPlayerRatingRepository) ListTop(ctx context.Context, limit int) ([]*models.PlayerRating, error) {
	query := `
		SELECT player_id, elo, matches_played, wins, losses, draws, sets_won, sets_lost
		FROM player_ratings
		ORDER BY elo DESC, player_id ASC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query player ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]*models.PlayerRating, 0)
	for rows.Next() {
		var rating models.PlayerRating
		if scanErr := rows.Scan(
			&rating.PlayerID,
			&rating.Elo,
			&rating.MatchesPlayed,
			&rating.Wins,
			&rating.Losses,
			&rating.Draws,
			&rating.SetsWon,
			&rating.SetsLost,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan player rating row: %w", scanErr)
		}
		ratings = append(ratings, &rating)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during player rating rows iteration: %w", err)
	}
	return ratings, nil
}
