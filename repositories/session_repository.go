package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/ladder-system/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")

	// ErrRecalcAlreadyRunning is returned when the conditional transition to
	// running does not apply because another recalculation holds the session.
	ErrRecalcAlreadyRunning = errors.New("recalculation already running for this session")
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id int) (*models.Session, error)
	List(ctx context.Context, limit, offset int) ([]*models.Session, error)
	UpdateStatus(ctx context.Context, id int, status models.SessionStatus) error

	// TryStartRecalc is the lock acquisition: a single compare-and-swap that
	// moves recalc_status to running only from {null, idle, done, failed},
	// stamping a fresh token. Returns ErrRecalcAlreadyRunning on collision.
	TryStartRecalc(ctx context.Context, id int, token string) error

	// FinishRecalc releases the lock, transitioning to done or failed. The
	// token guards against releasing a lock this run no longer owns.
	FinishRecalc(ctx context.Context, id int, token string, status models.RecalcStatus) error
}

type postgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

func (r *postgresSessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (name, created_by, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		session.Name,
		session.CreatedBy,
		session.Status,
	).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *postgresSessionRepository) GetByID(ctx context.Context, id int) (*models.Session, error) {
	query := `
		SELECT id, name, created_by, status, recalc_status, recalc_token,
		       recalc_started_at, recalc_finished_at, created_at
		FROM sessions
		WHERE id = $1`

	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.Name,
		&session.CreatedBy,
		&session.Status,
		&session.RecalcStatus,
		&session.RecalcToken,
		&session.RecalcStartedAt,
		&session.RecalcFinishedAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session %d: %w", id, err)
	}
	return session, nil
}

func (r *postgresSessionRepository) List(ctx context.Context, limit, offset int) ([]*models.Session, error) {
	query := `
		SELECT id, name, created_by, status, recalc_status, recalc_token,
		       recalc_started_at, recalc_finished_at, created_at
		FROM sessions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		var s models.Session
		if scanErr := rows.Scan(
			&s.ID,
			&s.Name,
			&s.CreatedBy,
			&s.Status,
			&s.RecalcStatus,
			&s.RecalcToken,
			&s.RecalcStartedAt,
			&s.RecalcFinishedAt,
			&s.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", scanErr)
		}
		sessions = append(sessions, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during session rows iteration: %w", err)
	}
	return sessions, nil
}

func (r *postgresSessionRepository) UpdateStatus(ctx context.Context, id int, status models.SessionStatus) error {
	query := `UPDATE sessions SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status for session %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrSessionNotFound)
}

func (r *postgresSessionRepository) TryStartRecalc(ctx context.Context, id int, token string) error {
	// Единственный условный UPDATE — либо захватили, либо кто-то уже работает.
	query := `
		UPDATE sessions
		SET recalc_status = 'running',
		    recalc_token = $2,
		    recalc_started_at = now(),
		    recalc_finished_at = NULL
		WHERE id = $1
		  AND (recalc_status IS NULL OR recalc_status IN ('idle', 'done', 'failed'))`

	result, err := r.db.ExecContext(ctx, query, id, token)
	if err != nil {
		return fmt.Errorf("failed to acquire recalc lock for session %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check recalc lock acquisition: %w", err)
	}
	if rowsAffected == 0 {
		// Either the session does not exist or it is currently running.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrRecalcAlreadyRunning
	}
	return nil
}

func (r *postgresSessionRepository) FinishRecalc(ctx context.Context, id int, token string, status models.RecalcStatus) error {
	if status != models.RecalcStatusDone && status != models.RecalcStatusFailed {
		return fmt.Errorf("invalid terminal recalc status %q", status)
	}
	query := `
		UPDATE sessions
		SET recalc_status = $3,
		    recalc_token = NULL,
		    recalc_finished_at = now()
		WHERE id = $1 AND recalc_token = $2`

	result, err := r.db.ExecContext(ctx, query, id, token, status)
	if err != nil {
		return fmt.Errorf("failed to release recalc lock for session %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrSessionNotFound)
}
