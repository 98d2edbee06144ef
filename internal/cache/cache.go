package cache

import (
	"context"
	"time"

	"gudangpos/backend/internal/domain"
)

// ReportCache holds short-lived read-side payloads (daily sales summary,
// low-stock alerts). Stock-bearing writes invalidate the warehouse scope so
// dashboards never serve figures from before a mutation.
type ReportCache interface {
	GetDailySales(ctx context.Context, key string) (*domain.DailySalesReport, bool, error)
	SetDailySales(ctx context.Context, key string, value *domain.DailySalesReport, ttl time.Duration) error
	GetLowStock(ctx context.Context, key string) (*domain.LowStockResponse, bool, error)
	SetLowStock(ctx context.Context, key string, value *domain.LowStockResponse, ttl time.Duration) error
	InvalidateWarehouse(ctx context.Context, warehouseID string) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetDailySales(_ context.Context, _ string) (*domain.DailySalesReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetDailySales(_ context.Context, _ string, _ *domain.DailySalesReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) GetLowStock(_ context.Context, _ string) (*domain.LowStockResponse, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetLowStock(_ context.Context, _ string, _ *domain.LowStockResponse, _ time.Duration) error {
	return nil
}

func (NoopReportCache) InvalidateWarehouse(_ context.Context, _ string) error {
	return nil
}
