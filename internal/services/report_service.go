package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// ReportService serves the chart aggregates. Pure reads; results are cached
// per user with a short TTL and invalidated on every ledger mutation.
type ReportService struct {
	repo       *storage.SQLiteRepository
	byCategory *cache.LRUCache[[]core.CategoryTotal]
	byDate     *cache.LRUCache[[]core.DateTotal]
}

func NewReportService(repo *storage.SQLiteRepository) *ReportService {
	return &ReportService{
		repo:       repo,
		byCategory: cache.NewLRUCache[[]core.CategoryTotal](200, 5*time.Minute),
		byDate:     cache.NewLRUCache[[]core.DateTotal](100, 5*time.Minute),
	}
}

// ByCategory groups the user's transactions of the given type by category,
// summing amounts. Empty ledgers yield empty aggregates, never an error.
func (s *ReportService) ByCategory(ctx context.Context, userID int64, t core.CategoryType) ([]core.CategoryTotal, error) {
	if !t.Valid() {
		return nil, core.ErrInvalidType
	}
	key := categoryKey(userID, t)
	if totals, ok := s.byCategory.Get(key); ok {
		return totals, nil
	}

	totals, err := s.repo.SumByCategory(ctx, userID, t)
	if err != nil {
		return nil, fmt.Errorf("aggregate by category: %w", err)
	}
	s.byCategory.Set(key, totals)
	return totals, nil
}

// ByDate groups the user's transactions by date in ascending order, summing
// income and expense separately per day.
func (s *ReportService) ByDate(ctx context.Context, userID int64) ([]core.DateTotal, error) {
	key := dateKey(userID)
	if totals, ok := s.byDate.Get(key); ok {
		return totals, nil
	}

	totals, err := s.repo.SumByDate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("aggregate by date: %w", err)
	}
	s.byDate.Set(key, totals)
	return totals, nil
}

// Invalidate drops all cached aggregates for a user.
func (s *ReportService) Invalidate(userID int64) {
	s.byCategory.Delete(categoryKey(userID, core.Income))
	s.byCategory.Delete(categoryKey(userID, core.Expense))
	s.byDate.Delete(dateKey(userID))
}

// CleanExpired removes stale cache entries; run periodically.
func (s *ReportService) CleanExpired() int {
	return s.byCategory.CleanExpired() + s.byDate.CleanExpired()
}

func categoryKey(userID int64, t core.CategoryType) string {
	return strconv.FormatInt(userID, 10) + ":" + string(t)
}

func dateKey(userID int64) string {
	return strconv.FormatInt(userID, 10) + ":date"
}
