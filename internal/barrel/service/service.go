package service

import (
	"github.com/bitfantasy/hevea/internal/barrel/repository"
	"github.com/bitfantasy/hevea/internal/config"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/bitfantasy/hevea/internal/shared/notify"
	"go.uber.org/zap"
)

// Services 木桶域服务集合
type Services struct {
	Barrel    *BarrelService
	Condition *ConditionService
	Repair    *RepairService
}

// NewServices 创建木桶域服务集合
func NewServices(
	repos *repository.Repositories,
	recorder *audit.Recorder,
	notifier *notify.Dispatcher,
	cfg *config.WorkflowConfig,
	logger *zap.Logger,
) *Services {
	return &Services{
		Barrel:    NewBarrelService(repos.Barrel, recorder, cfg.DefaultZone, logger),
		Condition: NewConditionService(repos.Barrel, repos.Ticket, recorder, notifier, cfg.FaultThreshold, logger),
		Repair:    NewRepairService(repos.Barrel, repos.Ticket, repos.Repair, recorder, notifier, cfg.DefaultZone, logger),
	}
}
