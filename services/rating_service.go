package services

import (
	"context"
	"fmt"

	"github.com/Dosada05/ladder-system/models"
	"github.com/Dosada05/ladder-system/repositories"
)

// RatingService is the leaderboard read side.
type RatingService interface {
	TopSingles(ctx context.Context, limit int) ([]*models.PlayerRating, error)
	TopDoubles(ctx context.Context, limit int) ([]*models.PlayerDoublesRating, error)
	TopTeams(ctx context.Context, limit int) ([]*models.TeamRating, error)
}

type ratingService struct {
	singles repositories.PlayerRatingRepository
	doubles repositories.PlayerDoublesRatingRepository
	teams   repositories.TeamRepository
}

func NewRatingService(
	singles repositories.PlayerRatingRepository,
	doubles repositories.PlayerDoublesRatingRepository,
	teams repositories.TeamRepository,
) RatingService {
	return &ratingService{singles: singles, doubles: doubles, teams: teams}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func (s *ratingService) TopSingles(ctx context.Context, limit int) ([]*models.PlayerRating, error) {
	ratings, err := s.singles.ListTop(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list singles leaderboard: %w", err)
	}
	return ratings, nil
}

func (s *ratingService) TopDoubles(ctx context.Context, limit int) ([]*models.PlayerDoublesRating, error) {
	ratings, err := s.doubles.ListTop(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list doubles leaderboard: %w", err)
	}
	return ratings, nil
}

func (s *ratingService) TopTeams(ctx context.Context, limit int) ([]*models.TeamRating, error) {
	teams, err := s.teams.ListTop(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list team leaderboard: %w", err)
	}
	return teams, nil
}
