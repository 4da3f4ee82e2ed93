package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/ladder-system/models"
	"github.com/Dosada05/ladder-system/repositories"
	"github.com/Dosada05/ladder-system/schedule"
)

type CreateSessionInput struct {
	Name      string `json:"name"`
	CreatedBy int    `json:"-"`
}

type SessionService interface {
	Create(ctx context.Context, input CreateSessionInput) (*models.Session, error)
	GetByID(ctx context.Context, id int) (*models.Session, error)
	List(ctx context.Context, limit, offset int) ([]*models.Session, error)
	Complete(ctx context.Context, sessionID, actingUser int, actingRole models.UserRole) error

	// GenerateMatches creates round-robin singles pairings for the given
	// players inside the session.
	GenerateMatches(ctx context.Context, sessionID int, playerIDs []int, actingUser int, actingRole models.UserRole) ([]*models.Match, error)
}

type sessionService struct {
	tx          TxRunner
	sessionRepo repositories.SessionRepository
	matchRepo   repositories.MatchRepository
}

func NewSessionService(tx TxRunner, sessionRepo repositories.SessionRepository, matchRepo repositories.MatchRepository) SessionService {
	return &sessionService{tx: tx, sessionRepo: sessionRepo, matchRepo: matchRepo}
}

func (s *sessionService) Create(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: session name is required", ErrValidationFailed)
	}
	session := &models.Session{
		Name:      input.Name,
		CreatedBy: input.CreatedBy,
		Status:    models.SessionStatusActive,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *sessionService) GetByID(ctx context.Context, id int) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %d: %w", id, err)
	}
	return session, nil
}

func (s *sessionService) List(ctx context.Context, limit, offset int) ([]*models.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	sessions, err := s.sessionRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *sessionService) Complete(ctx context.Context, sessionID, actingUser int, actingRole models.UserRole) error {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.CreatedBy != actingUser && actingRole != models.RoleAdmin {
		return ErrForbiddenOperation
	}
	if session.Status == models.SessionStatusCompleted {
		return ErrSessionCompleted
	}
	if err := s.sessionRepo.UpdateStatus(ctx, sessionID, models.SessionStatusCompleted); err != nil {
		return fmt.Errorf("failed to complete session %d: %w", sessionID, err)
	}
	return nil
}

func (s *sessionService) GenerateMatches(ctx context.Context, sessionID int, playerIDs []int, actingUser int, actingRole models.UserRole) ([]*models.Match, error) {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CreatedBy != actingUser && actingRole != models.RoleAdmin {
		return nil, ErrForbiddenOperation
	}
	if session.Status == models.SessionStatusCompleted {
		return nil, ErrSessionCompleted
	}
	if len(playerIDs) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	pairings, err := schedule.RoundRobin(playerIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	matches := make([]*models.Match, 0, len(pairings))
	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		for _, pairing := range pairings {
			match := &models.Match{
				SessionID:   sessionID,
				RoundNumber: pairing.Round,
				MatchOrder:  pairing.Order,
				MatchType:   models.MatchTypeSingles,
				PlayerIDs:   []int64{int64(pairing.Player1ID), int64(pairing.Player2ID)},
				Status:      models.MatchStatusPending,
			}
			if err := s.matchRepo.Create(ctx, exec, match); err != nil {
				return err
			}
			matches = append(matches, match)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate matches for session %d: %w", sessionID, err)
	}
	return matches, nil
}
