package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bitfantasy/hevea/internal/collection/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DashboardService 仪表盘统计
// redis仅作短TTL缓存，未配置时直接查库；配额校验永远不读缓存
type DashboardService struct {
	requestRepo *repository.RequestRepository
	rdb         *redis.Client
	logger      *zap.Logger
}

func NewDashboardService(requestRepo *repository.RequestRepository, rdb *redis.Client, logger *zap.Logger) *DashboardService {
	return &DashboardService{requestRepo: requestRepo, rdb: rdb, logger: logger}
}

const (
	dashboardCacheKey = "hevea:dashboard:stats"
	dashboardCacheTTL = 30 * time.Second
)

// DashboardStats 流水线各阶段单量
type DashboardStats struct {
	ByStatus map[string]int64 `json:"by_status"`
	Total    int64            `json:"total"`
}

// Stats 统计各状态采集单数量
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, dashboardCacheKey).Result(); err == nil {
			var stats DashboardStats
			if json.Unmarshal([]byte(cached), &stats) == nil {
				return &stats, nil
			}
		}
	}

	byStatus, err := s.requestRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{ByStatus: byStatus}
	for _, c := range byStatus {
		stats.Total += c
	}

	if s.rdb != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.rdb.Set(ctx, dashboardCacheKey, data, dashboardCacheTTL).Err(); err != nil {
				s.logger.Warn("cache dashboard stats failed", zap.Error(err))
			}
		}
	}

	return stats, nil
}
