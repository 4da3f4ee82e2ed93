package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/ladder-system/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchSessionInvalid = errors.New("match session conflict or invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)

	// ListBySession returns the session's matches sorted by round_number
	// ascending then match_order ascending — the replay order.
	ListBySession(ctx context.Context, sessionID int) ([]*models.Match, error)

	// UpdateResult persists scores, status and edit metadata. Idempotent to
	// retry: it overwrites the same columns with the same values.
	UpdateResult(ctx context.Context, id int, team1Score, team2Score int, status models.MatchStatus, edited bool, editedBy *int, editedAt *time.Time, reason *string) error

	UpdateTeams(ctx context.Context, id int, team1ID, team2ID int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(session_id, round_number, match_order, match_type, player_ids,
			 team_1_id, team_2_id, team1_score, team2_score, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		match.SessionID,
		match.RoundNumber,
		match.MatchOrder,
		match.MatchType,
		pq.Array(match.PlayerIDs),
		match.Team1ID,
		match.Team2ID,
		match.Team1Score,
		match.Team2Score,
		match.Status,
	).Scan(&match.ID, &match.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "matches_session_id_fkey" {
			return ErrMatchSessionInvalid
		}
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `
		SELECT id, session_id, round_number, match_order, match_type, player_ids,
		       team_1_id, team_2_id, team1_score, team2_score, status,
		       is_edited, edited_at, edited_by, edit_reason, created_at
		FROM matches
		WHERE id = $1`

	match := &models.Match{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&match.ID,
		&match.SessionID,
		&match.RoundNumber,
		&match.MatchOrder,
		&match.MatchType,
		pq.Array(&match.PlayerIDs),
		&match.Team1ID,
		&match.Team2ID,
		&match.Team1Score,
		&match.Team2Score,
		&match.Status,
		&match.IsEdited,
		&match.EditedAt,
		&match.EditedBy,
		&match.EditReason,
		&match.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListBySession(ctx context.Context, sessionID int) ([]*models.Match, error) {
	query := `
		SELECT id, session_id, round_number, match_order, match_type, player_ids,
		       team_1_id, team_2_id, team1_score, team2_score, status,
		       is_edited, edited_at, edited_by, edit_reason, created_at
		FROM matches
		WHERE session_id = $1
		ORDER BY round_number ASC, match_order ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var match models.Match
		if scanErr := rows.Scan(
			&match.ID,
			&match.SessionID,
			&match.RoundNumber,
			&match.MatchOrder,
			&match.MatchType,
			pq.Array(&match.PlayerIDs),
			&match.Team1ID,
			&match.Team2ID,
			&match.Team1Score,
			&match.Team2Score,
			&match.Status,
			&match.IsEdited,
			&match.EditedAt,
			&match.EditedBy,
			&match.EditReason,
			&match.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, &match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, id int, team1Score, team2Score int, status models.MatchStatus, edited bool, editedBy *int, editedAt *time.Time, reason *string) error {
	query := `
		UPDATE matches
		SET team1_score = $1, team2_score = $2, status = $3,
		    is_edited = $4, edited_by = $5, edited_at = $6, edit_reason = $7
		WHERE id = $8`

	result, err := r.db.ExecContext(ctx, query, team1Score, team2Score, status, edited, editedBy, editedAt, reason, id)
	if err != nil {
		return fmt.Errorf("failed to update result for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateTeams(ctx context.Context, id int, team1ID, team2ID int) error {
	query := `UPDATE matches SET team_1_id = $1, team_2_id = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, team1ID, team2ID, id)
	if err != nil {
		return fmt.Errorf("failed to update teams for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}
