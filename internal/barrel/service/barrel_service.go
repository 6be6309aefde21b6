package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/hevea/internal/barrel/entity"
	"github.com/bitfantasy/hevea/internal/barrel/repository"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const entityTypeBarrel = "barrel"

var validZones = map[string]bool{
	entity.ZoneFactory:   true,
	entity.ZoneLumbBay:   true,
	entity.ZoneRepairBay: true,
	entity.ZoneScrapYard: true,
	entity.ZoneCustomer:  true,
	entity.ZoneWarehouse: true,
}

// BarrelService 木桶台账
type BarrelService struct {
	barrelRepo  *repository.BarrelRepository
	recorder    *audit.Recorder
	defaultZone string
	logger      *zap.Logger
}

func NewBarrelService(barrelRepo *repository.BarrelRepository, recorder *audit.Recorder, defaultZone string, logger *zap.Logger) *BarrelService {
	return &BarrelService{
		barrelRepo:  barrelRepo,
		recorder:    recorder,
		defaultZone: defaultZone,
		logger:      logger,
	}
}

// CreateBarrelRequest 新桶入册请求
type CreateBarrelRequest struct {
	CapacityKg float64 `json:"capacity_kg" binding:"required"`
	Zone       string  `json:"zone"`
	Notes      string  `json:"notes"`
}

// Create 经理登记新桶
func (s *BarrelService) Create(ctx context.Context, actor auth.Actor, req *CreateBarrelRequest) (*entity.Barrel, error) {
	if !actor.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("只有经理可以登记木桶")
	}
	if req.CapacityKg <= 0 {
		return nil, apperr.Validation("容量必须大于0")
	}

	zone := req.Zone
	if zone == "" {
		zone = s.defaultZone
	}
	if !validZones[zone] {
		return nil, apperr.Validation("未知区域 %s", zone)
	}

	code, err := s.barrelRepo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成木桶编码失败: %w", err)
	}

	barrel := &entity.Barrel{
		ID:         uuid.New().String()[:32],
		Code:       code,
		CapacityKg: req.CapacityKg,
		Condition:  entity.ConditionOK,
		Zone:       zone,
		CreatedBy:  actor.ID,
		Notes:      req.Notes,
	}
	if err := s.barrelRepo.Create(ctx, barrel); err != nil {
		return nil, err
	}

	s.appendLog(ctx, barrel, actor, "create", "", entity.ConditionOK, "", zone,
		fmt.Sprintf("登记新桶，容量 %.2fkg", req.CapacityKg))
	return barrel, nil
}

// List 查询木桶列表
func (s *BarrelService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Barrel, int64, error) {
	return s.barrelRepo.FindAll(ctx, page, pageSize, filters)
}

// Get 查询木桶详情
func (s *BarrelService) Get(ctx context.Context, id string) (*entity.Barrel, error) {
	return s.barrelRepo.FindByID(ctx, id)
}

// Timeline 查询木桶操作时间线
func (s *BarrelService) Timeline(ctx context.Context, id string) ([]audit.ActivityLog, error) {
	if _, err := s.barrelRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.recorder.FindByEntity(ctx, entityTypeBarrel, id)
}

// MoveRequest 移桶请求
type MoveRequest struct {
	Zone  string `json:"zone" binding:"required"`
	Notes string `json:"notes"`
}

// Move 人工移桶；报废桶不再移动
func (s *BarrelService) Move(ctx context.Context, actor auth.Actor, id string, req *MoveRequest) (*entity.Barrel, error) {
	if !actor.HasAnyRole(auth.RoleFieldStaff, auth.RoleDeliveryStaff, auth.RoleManager) {
		return nil, apperr.Authorization("当前角色不允许移桶")
	}
	if !validZones[req.Zone] {
		return nil, apperr.Validation("未知区域 %s", req.Zone)
	}

	barrel, err := s.barrelRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if barrel.IsDisposed() {
		return nil, apperr.Conflict("木桶 %s 已报废，不允许移动", barrel.Code)
	}
	if barrel.Zone == req.Zone {
		return barrel, nil
	}

	fromZone := barrel.Zone
	barrel.Zone = req.Zone
	barrel.UpdatedAt = time.Now()
	if err := s.barrelRepo.Update(ctx, barrel); err != nil {
		return nil, err
	}

	s.appendLog(ctx, barrel, actor, "move", "", "", fromZone, req.Zone, req.Notes)
	return barrel, nil
}

// SetVolumeRequest 装载量设定请求
type SetVolumeRequest struct {
	VolumeKg float64 `json:"volume_kg"`
}

// SetVolume 设定桶内胶乳量，0 ≤ volume ≤ capacity
func (s *BarrelService) SetVolume(ctx context.Context, actor auth.Actor, id string, req *SetVolumeRequest) (*entity.Barrel, error) {
	if !actor.HasAnyRole(auth.RoleFieldStaff, auth.RoleLabStaff, auth.RoleManager) {
		return nil, apperr.Authorization("当前角色不允许设定装载量")
	}

	barrel, err := s.barrelRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if barrel.IsDisposed() {
		return nil, apperr.Conflict("木桶 %s 已报废，不允许装载", barrel.Code)
	}
	if req.VolumeKg < 0 || req.VolumeKg > barrel.CapacityKg {
		return nil, apperr.Validation("装载量必须在0到容量 %.2fkg 之间", barrel.CapacityKg)
	}

	barrel.VolumeKg = req.VolumeKg
	barrel.UpdatedAt = time.Now()
	if err := s.barrelRepo.Update(ctx, barrel); err != nil {
		return nil, err
	}

	s.appendLog(ctx, barrel, actor, "set_volume", "", "", "", "",
		fmt.Sprintf("装载量设为 %.2fkg", req.VolumeKg))
	return barrel, nil
}

func (s *BarrelService) appendLog(ctx context.Context, barrel *entity.Barrel, actor auth.Actor, action, from, to, fromZone, toZone, content string) {
	err := s.recorder.Append(ctx, &audit.ActivityLog{
		EntityType:   entityTypeBarrel,
		EntityID:     barrel.ID,
		EntityCode:   barrel.Code,
		Action:       action,
		FromStatus:   from,
		ToStatus:     to,
		FromZone:     fromZone,
		ToZone:       toZone,
		Content:      content,
		OperatorID:   actor.ID,
		OperatorName: actor.Name,
	})
	if err != nil {
		s.logger.Warn("append activity log failed",
			zap.String("barrel_id", barrel.ID),
			zap.Error(err))
	}
}
