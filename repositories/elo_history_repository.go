package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/ladder-system/models"
	"github.com/lib/pq"
)

type EloHistoryRepository interface {
	// ListBySessionAndType returns this session's audit rows for one rating
	// subsystem. Baseline reversal reads these BEFORE DeleteByMatchIDs runs.
	ListBySessionAndType(ctx context.Context, sessionID int, entityType models.EntityType) ([]*models.MatchEloHistory, error)

	ListByMatch(ctx context.Context, matchID int) ([]*models.MatchEloHistory, error)

	// DeleteByMatchIDs clears stale audit rows for the matches about to be
	// replayed, scoped to the edited type's entity kinds.
	DeleteByMatchIDs(ctx context.Context, exec SQLExecutor, matchIDs []int, entityTypes []models.EntityType) error

	// InsertBatch writes the new replay's audit trail in one statement.
	InsertBatch(ctx context.Context, exec SQLExecutor, records []*models.MatchEloHistory) error
}

type postgresEloHistoryRepository struct {
	db *sql.DB
}

func NewPostgresEloHistoryRepository(db *sql.DB) EloHistoryRepository {
	return &postgresEloHistoryRepository{db: db}
}

const historyColumns = `id, match_id, session_id, entity_type, entity_id, elo_before, elo_after, elo_change, created_at`

func (r *postgresEloHistoryRepository) ListBySessionAndType(ctx context.Context, sessionID int, entityType models.EntityType) ([]*models.MatchEloHistory, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM match_elo_history
		WHERE session_id = $1 AND entity_type = $2
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to query elo history for session %d: %w", sessionID, err)
	}
	return r.collectRows(rows)
}

func (r *postgresEloHistoryRepository) ListByMatch(ctx context.Context, matchID int) ([]*models.MatchEloHistory, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM match_elo_history
		WHERE match_id = $1
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query elo history for match %d: %w", matchID, err)
	}
	return r.collectRows(rows)
}

func (r *postgresEloHistoryRepository) DeleteByMatchIDs(ctx context.Context, exec SQLExecutor, matchIDs []int, entityTypes []models.EntityType) error {
	if len(matchIDs) == 0 {
		return nil
	}
	ids := make([]int64, len(matchIDs))
	for i, id := range matchIDs {
		ids[i] = int64(id)
	}
	types := make([]string, len(entityTypes))
	for i, t := range entityTypes {
		types[i] = string(t)
	}

	query := `DELETE FROM match_elo_history WHERE match_id = ANY($1) AND entity_type = ANY($2)`
	if _, err := exec.ExecContext(ctx, query, pq.Array(ids), pq.Array(types)); err != nil {
		return fmt.Errorf("failed to delete elo history for %d matches: %w", len(matchIDs), err)
	}
	return nil
}

func (r *postgresEloHistoryRepository) InsertBatch(ctx context.Context, exec SQLExecutor, records []*models.MatchEloHistory) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO match_elo_history
			(match_id, session_id, entity_type, entity_id, elo_before, elo_after, elo_change)
		SELECT * FROM unnest($1::int[], $2::int[], $3::text[], $4::int[], $5::float8[], $6::float8[], $7::float8[])`

	matchIDs := make([]int64, len(records))
	sessionIDs := make([]int64, len(records))
	entityTypes := make([]string, len(records))
	entityIDs := make([]int64, len(records))
	before := make([]float64, len(records))
	after := make([]float64, len(records))
	change := make([]float64, len(records))
	for i, rec := range records {
		matchIDs[i] = int64(rec.MatchID)
		sessionIDs[i] = int64(rec.SessionID)
		entityTypes[i] = string(rec.EntityType)
		entityIDs[i] = int64(rec.EntityID)
		before[i] = rec.EloBefore
		after[i] = rec.EloAfter
		change[i] = rec.EloChange
	}

	_, err := exec.ExecContext(ctx, query,
		pq.Array(matchIDs),
		pq.Array(sessionIDs),
		pq.Array(entityTypes),
		pq.Array(entityIDs),
		pq.Array(before),
		pq.Array(after),
		pq.Array(change),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %d elo history rows: %w", len(records), err)
	}
	return nil
}

func (r *postgresEloHistoryRepository) collectRows(rows *sql.Rows) ([]*models.MatchEloHistory, error) {
	defer rows.Close()

	records := make([]*models.MatchEloHistory, 0)
	for rows.Next() {
		var rec models.MatchEloHistory
		if scanErr := rows.Scan(
			&rec.ID,
			&rec.MatchID,
			&rec.SessionID,
			&rec.EntityType,
			&rec.EntityID,
			&rec.EloBefore,
			&rec.EloAfter,
			&rec.EloChange,
			&rec.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan elo history row: %w", scanErr)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during elo history rows iteration: %w", err)
	}
	return records, nil
}
