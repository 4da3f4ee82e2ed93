package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/ladder-system/models"
)

// PlayerDoublesRatingRepository хранит партнёр-независимый рейтинг игрока в
// парах. Отдельное пространство рейтинга: одиночные матчи его не трогают.
type PlayerDoublesRatingRepository interface {
	Get(ctx context.Context, playerID int) (*models.PlayerDoublesRating, error)
	Upsert(ctx context.Context, exec SQLExecutor, rating *models.PlayerDoublesRating) error
	ListTop(ctx context.Context, limit int) ([]*models.PlayerDoublesRating, error)
}

type postgresPlayerDoublesRatingRepository struct {
	db *sql.DB
}

func NewPostgresPlayerDoublesRatingRepository(db *sql.DB) PlayerDoublesRatingRepository {
	return &postgresPlayerDoublesRatingRepository{db: db}
}

func (r *postgresPlayerDoublesRatingRepository) Get(ctx context.Context, playerID int) (*models.PlayerDoublesRating, error) {
	query := `
		SELECT player_id, elo, matches_played, wins, losses, draws, sets_won, sets_lost
		FROM player_doubles_ratings
		WHERE player_id = $1`

	rating := &models.PlayerDoublesRating{}
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
		return nil, fmt.Errorf("failed to scan doubles rating %d: %w", playerID, err)
	}
	return rating, nil
}

func (r *postgresPlayerDoublesRatingRepository) Upsert(ctx context.Context, exec SQLExecutor, rating *models.PlayerDoublesRating) error {
	query := `
		INSERT INTO player_doubles_ratings
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
		return fmt.Errorf("failed to upsert doubles rating %d: %w", rating.PlayerID, err)
	}
	return nil
}

func (r *postgresPlayerDoublesRatingRepository) ListTop(ctx context.Context, limit int) ([]*models.PlayerDoublesRating, error) {
	query := `
		SELECT player_id, elo, matches_played, wins, losses, draws, sets_won, sets_lost
		FROM player_doubles_ratings
		ORDER BY elo DESC, player_id ASC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query doubles ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]*models.PlayerDoublesRating, 0)
	for rows.Next() {
		var rating models.PlayerDoublesRating
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
			return nil, fmt.Errorf("failed to scan doubles rating row: %w", scanErr)
		}
		ratings = append(ratings, &rating)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during doubles rating rows iteration: %w", err)
	}
	return ratings, nil
}
