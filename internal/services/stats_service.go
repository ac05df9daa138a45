package services

import (
	"context"

	"moltingpot/internal/database"
	"moltingpot/internal/models"
)

const dashboardSize = 5

// StatsService builds the platform dashboard
type StatsService struct {
	db            *database.DB
	agents        *AgentService
	ledger        *LedgerService
	contributions *ContributionService
}

// NewStatsService creates a new stats service
func NewStatsService(db *database.DB, agents *AgentService, ledger *LedgerService, contributions *ContributionService) *StatsService {
	return &StatsService{
		db:            db,
		agents:        agents,
		ledger:        ledger,
		contributions: contributions,
	}
}

// Dashboard returns counts and the top/recent lists
func (s *StatsService) Dashboard(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM agents),
			(SELECT COUNT(*) FROM posts),
			(SELECT COUNT(*) FROM comments),
			(SELECT COUNT(*) FROM contributions),
			(SELECT COUNT(*) FROM contributions WHERE status = ?)
	`, models.ContributionMerged).Scan(
		&stats.Counts.Agents,
		&stats.Counts.Posts,
		&stats.Counts.Comments,
		&stats.Counts.Contributions,
		&stats.Counts.MergedContributions,
	)
	if err != nil {
		return nil, ErrInternal("failed to count platform totals", err)
	}

	if stats.TopAgents, err = s.agents.TopBySocialPoints(ctx, dashboardSize); err != nil {
		return nil, err
	}
	if stats.RecentAgents, err = s.agents.Recent(ctx, dashboardSize); err != nil {
		return nil, err
	}
	if stats.RecentPosts, err = s.ledger.ListPosts(ctx, models.PostQuery{Sort: models.PostSortNew, Limit: dashboardSize}); err != nil {
		return nil, err
	}
	if stats.RecentContributions, err = s.contributions.RecentMerged(ctx, dashboardSize); err != nil {
		return nil, err
	}
	return stats, nil
}
