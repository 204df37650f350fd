package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-crm-api/internal/dto"
	"github.com/noah-isme/edu-crm-api/internal/models"
	appErrors "github.com/noah-isme/edu-crm-api/pkg/errors"
)

type funnelRepository interface {
	StageCounts(ctx context.Context, institutionID string) ([]models.StageCount, error)
	TotalLeads(ctx context.Context, institutionID string) (int, error)
	ConvertedLeads(ctx context.Context, institutionID string) (int, error)
	LeaderboardRows(ctx context.Context, institutionID string) ([]models.LeaderboardEntry, error)
	VisitOutcomes(ctx context.Context, filter models.VisitStatsFilter) (*models.VisitOutcomeStats, error)
}

// funnelCachePattern matches every cached funnel metric for one tenant. Any
// write that can shift a count invalidates with this pattern.
func funnelCachePattern(institutionID string) string {
	return fmt.Sprintf("funnel:%s:*", institutionID)
}

func funnelCacheKey(institutionID, metric string) string {
	return fmt.Sprintf("funnel:%s:%s", institutionID, metric)
}

// FunnelService aggregates read-only funnel metrics. Results are cached per
// tenant and recomputed after any lead or stage write.
type FunnelService struct {
	repo   funnelRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewFunnelService constructs a FunnelService.
func NewFunnelService(repo funnelRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *FunnelService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FunnelService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// CountsByStage returns one entry per stage in order_index order, including
// stages with zero leads.
func (s *FunnelService) CountsByStage(ctx context.Context, institutionID string) ([]models.StageCount, error) {
	key := funnelCacheKey(institutionID, "stage_counts")
	var cached []models.StageCount
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	counts, err := s.repo.StageCounts(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute stage counts")
	}
	s.cacheSet(ctx, key, counts)
	return counts, nil
}

// ConversionRate returns the share of leads sitting in the terminal stage. An
// empty funnel reports a zero rate rather than an error.
func (s *FunnelService) ConversionRate(ctx context.Context, institutionID string) (*dto.ConversionResponse, error) {
	key := funnelCacheKey(institutionID, "conversion")
	var cached dto.ConversionResponse
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	total, err := s.repo.TotalLeads(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count leads")
	}
	converted := 0
	if total > 0 {
		converted, err = s.repo.ConvertedLeads(ctx, institutionID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count converted leads")
		}
	}

	resp := &dto.ConversionResponse{
		TotalLeads:     total,
		ConvertedLeads: converted,
	}
	if total > 0 {
		resp.ConversionRate = float64(converted) / float64(total)
	}
	s.cacheSet(ctx, key, resp)
	return resp, nil
}

// UserLeaderboard ranks users by conversion rate, breaking ties by lead count
// and then user ID so the ordering is deterministic.
func (s *FunnelService) UserLeaderboard(ctx context.Context, institutionID string) ([]models.LeaderboardEntry, error) {
	key := funnelCacheKey(institutionID, "leaderboard")
	var cached []models.LeaderboardEntry
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	rows, err := s.repo.LeaderboardRows(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute leaderboard")
	}
	for i := range rows {
		if rows[i].LeadCount > 0 {
			rows[i].ConversionRate = float64(rows[i].ConversionCount) / float64(rows[i].LeadCount)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ConversionRate != rows[j].ConversionRate {
			return rows[i].ConversionRate > rows[j].ConversionRate
		}
		if rows[i].LeadCount != rows[j].LeadCount {
			return rows[i].LeadCount > rows[j].LeadCount
		}
		return rows[i].UserID < rows[j].UserID
	})

	s.cacheSet(ctx, key, rows)
	return rows, nil
}

// VisitStats aggregates visit outcomes inside the optional date range. Ranged
// queries bypass the cache; only the unbounded tenant-wide stats are cached.
func (s *FunnelService) VisitStats(ctx context.Context, filter models.VisitStatsFilter) (*models.VisitOutcomeStats, error) {
	cacheable := filter.From == nil && filter.To == nil
	key := funnelCacheKey(filter.InstitutionID, "visit_stats")
	if cacheable {
		var cached models.VisitOutcomeStats
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	stats, err := s.repo.VisitOutcomes(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute visit stats")
	}
	if cacheable {
		s.cacheSet(ctx, key, stats)
	}
	return stats, nil
}

// Overview bundles the dashboard metrics into one payload.
func (s *FunnelService) Overview(ctx context.Context, institutionID string) (*dto.FunnelOverviewResponse, error) {
	stages, err := s.CountsByStage(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	conversion, err := s.ConversionRate(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	leaderboard, err := s.UserLeaderboard(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	visits, err := s.VisitStats(ctx, models.VisitStatsFilter{InstitutionID: institutionID})
	if err != nil {
		return nil, err
	}
	return &dto.FunnelOverviewResponse{
		TotalLeads:     conversion.TotalLeads,
		ConversionRate: conversion.ConversionRate,
		Stages:         stages,
		Leaderboard:    leaderboard,
		Visits:         *visits,
	}, nil
}

func (s *FunnelService) cacheSet(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("failed to cache funnel metric", zap.String("key", key), zap.Error(err))
	}
}
