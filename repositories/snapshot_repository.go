package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/ladder-system/models"
)

var ErrSnapshotNotFound = errors.New("session rating snapshot not found")

type SnapshotRepository interface {
	// GetLatestBefore returns the entity's most recent snapshot from a
	// session that precedes sessionID chronologically and is completed.
	// This is the normal baseline for an entity that has played before.
	GetLatestBefore(ctx context.Context, entityType models.EntityType, entityID, sessionID int) (*models.SessionRatingSnapshot, error)

	// GetForSession returns the snapshot row tagged to the session itself
	// (a start-of-session capture, baseline fallback two).
	GetForSession(ctx context.Context, sessionID int, entityType models.EntityType, entityID int) (*models.SessionRatingSnapshot, error)

	Upsert(ctx context.Context, exec SQLExecutor, snapshot *models.SessionRatingSnapshot) error
}

type postgresSnapshotRepository struct {
	db *sql.DB
}

func NewPostgresSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &postgresSnapshotRepository{db: db}
}

const snapshotColumns = `s.session_id, s.entity_type, s.entity_id, s.elo, s.matches_played, s.wins, s.losses, s.draws, s.sets_won, s.sets_lost`

func (r *postgresSnapshotRepository) GetLatestBefore(ctx context.Context, entityType models.EntityType, entityID, sessionID int) (*models.SessionRatingSnapshot, error) {
	// Хронология сессий определяется их created_at; берём последний снимок
	// из завершённой сессии, созданной раньше текущей.
	query := `
		SELECT ` + snapshotColumns + `
		FROM session_rating_snapshots s
		JOIN sessions ses ON ses.id = s.session_id
		WHERE s.entity_type = $1
		  AND s.entity_id = $2
		  AND ses.status = 'completed'
		  AND ses.created_at < (SELECT created_at FROM sessions WHERE id = $3)
		ORDER BY ses.created_at DESC, ses.id DESC
		LIMIT 1`

	return r.scanSnapshot(r.db.QueryRowContext(ctx, query, entityType, entityID, sessionID))
}

func (r *postgresSnapshotRepository) GetForSession(ctx context.Context, sessionID int, entityType models.EntityType, entityID int) (*models.SessionRatingSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM session_rating_snapshots s
		WHERE s.session_id = $1 AND s.entity_type = $2 AND s.entity_id = $3`

	return r.scanSnapshot(r.db.QueryRowContext(ctx, query, sessionID, entityType, entityID))
}

func (r *postgresSnapshotRepository) Upsert(ctx context.Context, exec SQLExecutor, snapshot *models.SessionRatingSnapshot) error {
	query := `
		INSERT INTO session_rating_snapshots
			(session_id, entity_type, entity_id, elo, matches_played, wins, losses, draws, sets_won, sets_lost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, entity_type, entity_id) DO UPDATE SET
			elo = EXCLUDED.elo,
			matches_played = EXCLUDED.matches_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			sets_won = EXCLUDED.sets_won,
			sets_lost = EXCLUDED.sets_lost`

	_, err := exec.ExecContext(ctx, query,
		snapshot.SessionID,
		snapshot.EntityType,
		snapshot.EntityID,
		snapshot.Elo,
		snapshot.MatchesPlayed,
		snapshot.Wins,
		snapshot.Losses,
		snapshot.Draws,
		snapshot.SetsWon,
		snapshot.SetsLost,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot (session %d, %s %d): %w",
			snapshot.SessionID, snapshot.EntityType, snapshot.EntityID, err)
	}
	return nil
}

func (r *postgresSnapshotRepository) scanSnapshot(row *sql.Row) (*models.SessionRatingSnapshot, error) {
	snapshot := &models.SessionRatingSnapshot{}
	err := row.Scan(
		&snapshot.SessionID,
		&snapshot.EntityType,
		&snapshot.EntityID,
		&snapshot.Elo,
		&snapshot.MatchesPlayed,
		&snapshot.Wins,
		&snapshot.Losses,
		&snapshot.Draws,
		&snapshot.SetsWon,
		&snapshot.SetsLost,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to scan session rating snapshot: %w", err)
	}
	return snapshot, nil
}
