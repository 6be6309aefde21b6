package service

import (
	"github.com/bitfantasy/hevea/internal/collection/repository"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/bitfantasy/hevea/internal/shared/notify"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services 采集域服务集合
type Services struct {
	Quota     *QuotaGuard
	Supplier  *SupplierService
	Workflow  *WorkflowService
	Dashboard *DashboardService
	Report    *ReportService
}

// NewServices 创建采集域服务集合
func NewServices(
	repos *repository.Repositories,
	recorder *audit.Recorder,
	notifier *notify.Dispatcher,
	rdb *redis.Client,
	logger *zap.Logger,
) *Services {
	quota := NewQuotaGuard(repos.Supplier, repos.Request)
	return &Services{
		Quota:     quota,
		Supplier:  NewSupplierService(repos.Supplier, quota),
		Workflow:  NewWorkflowService(repos.Request, repos.Supplier, quota, recorder, notifier, logger),
		Dashboard: NewDashboardService(repos.Request, rdb, logger),
		Report:    NewReportService(repos.Request, repos.Supplier),
	}
}
