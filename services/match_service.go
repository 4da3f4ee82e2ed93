package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/ladder-system/models"
	"github.com/Dosada05/ladder-system/repositories"
)

type MatchService interface {
	ListBySession(ctx context.Context, sessionID int) ([]*models.Match, error)
	GetEloHistory(ctx context.Context, matchID int) ([]*models.MatchEloHistory, error)
}

type matchService struct {
	matchRepo   repositories.MatchRepository
	historyRepo repositories.EloHistoryRepository
}

func NewMatchService(matchRepo repositories.MatchRepository, historyRepo repositories.EloHistoryRepository) MatchService {
	return &matchService{matchRepo: matchRepo, historyRepo: historyRepo}
}

func (s *matchService) ListBySession(ctx context.Context, sessionID int) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for session %d: %w", sessionID, err)
	}
	return matches, nil
}

func (s *matchService) GetEloHistory(ctx context.Context, matchID int) ([]*models.MatchEloHistory, error) {
	if _, err := s.matchRepo.GetByID(ctx, matchID); err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match %d: %w", matchID, err)
	}
	records, err := s.historyRepo.ListByMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load elo history for match %d: %w", matchID, err)
	}
	return records, nil
}
