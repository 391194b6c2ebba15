package service

import (
	"context"
	"time"

	"github.com/andresuchdata/paperview/backend-go/internal/catalog"
)

const (
	defaultRunLimit    = 20
	defaultObjectLimit = 100
	maxPageLimit       = 500
)

// StatusService serves the read side of the catalog for the API.
type StatusService struct {
	repo Catalog
}

func NewStatusService(repo Catalog) *StatusService {
	return &StatusService{repo: repo}
}

func (s *StatusService) RecentRuns(ctx context.Context, limit int) ([]catalog.IngestRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return s.repo.RecentRuns(ctx, limit)
}

func (s *StatusService) RunDetail(ctx context.Context, id int64) (*catalog.IngestRun, error) {
	return s.repo.GetRun(ctx, id)
}

func (s *StatusService) RunObjects(ctx context.Context, runID int64, limit, offset int) ([]catalog.IngestObject, error) {
	if limit <= 0 {
		limit = defaultObjectLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ObjectsByRun(ctx, runID, limit, offset)
}

func (s *StatusService) RunFailures(ctx context.Context, runID int64) ([]catalog.IngestObject, error) {
	return s.repo.FailuresByRun(ctx, runID)
}

func (s *StatusService) Stats(ctx context.Context, days int) (*catalog.IngestStats, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.repo.Stats(ctx, since)
}
