package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bitfantasy/hevea/internal/barrel/entity"
	"github.com/bitfantasy/hevea/internal/barrel/repository"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/bitfantasy/hevea/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FaultPercent 结块故障率：空桶增重相对基准重量的百分比，负值截为0
func FaultPercent(baseKg, emptyKg float64) float64 {
	return math.Max(0, round2((emptyKg-baseKg)/baseKg*100))
}

// ConditionService 木桶状态引擎
// 每次称重全量重算故障率；超阈值判定结块损坏并自动开工单，
// 已有未关闭工单时不重复开单。故障率回落不会自动恢复木桶状态
type ConditionService struct {
	barrelRepo *repository.BarrelRepository
	ticketRepo *repository.TicketRepository
	recorder   *audit.Recorder
	notifier   *notify.Dispatcher
	threshold  float64
	logger     *zap.Logger
}

func NewConditionService(
	barrelRepo *repository.BarrelRepository,
	ticketRepo *repository.TicketRepository,
	recorder *audit.Recorder,
	notifier *notify.Dispatcher,
	threshold float64,
	logger *zap.Logger,
) *ConditionService {
	return &ConditionService{
		barrelRepo: barrelRepo,
		ticketRepo: ticketRepo,
		recorder:   recorder,
		notifier:   notifier,
		threshold:  threshold,
		logger:     logger,
	}
}

// UpdateWeightsRequest 称重回填请求，两个重量可独立上报
type UpdateWeightsRequest struct {
	BaseWeightKg  *float64 `json:"base_weight_kg"`
	EmptyWeightKg *float64 `json:"empty_weight_kg"`
}

// UpdateWeights 回填称重并重算故障率
func (s *ConditionService) UpdateWeights(ctx context.Context, actor auth.Actor, id string, req *UpdateWeightsRequest) (*entity.Barrel, error) {
	if !actor.HasAnyRole(auth.RoleFieldStaff, auth.RoleLabStaff, auth.RoleManager) {
		return nil, apperr.Authorization("当前角色不允许回填称重")
	}
	if req.BaseWeightKg == nil && req.EmptyWeightKg == nil {
		return nil, apperr.Validation("至少提供一项重量")
	}
	if req.BaseWeightKg != nil && *req.BaseWeightKg <= 0 {
		return nil, apperr.Validation("基准重量必须大于0")
	}
	if req.EmptyWeightKg != nil && *req.EmptyWeightKg <= 0 {
		return nil, apperr.Validation("空桶重量必须大于0")
	}

	barrel, err := s.barrelRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if barrel.IsDisposed() {
		return nil, apperr.Conflict("木桶 %s 已报废，不允许称重", barrel.Code)
	}

	if req.BaseWeightKg != nil {
		barrel.BaseWeightKg = req.BaseWeightKg
	}
	if req.EmptyWeightKg != nil {
		barrel.EmptyWeightKg = req.EmptyWeightKg
	}

	var lumbed bool
	if barrel.BaseWeightKg != nil && barrel.EmptyWeightKg != nil {
		barrel.FaultPercent = FaultPercent(*barrel.BaseWeightKg, *barrel.EmptyWeightKg)
		if barrel.FaultPercent > s.threshold {
			lumbed = true
			barrel.Condition = entity.ConditionDamaged
			barrel.DamageType = entity.DamageTypeLumbed
		}
	}

	barrel.UpdatedAt = time.Now()
	if err := s.barrelRepo.Update(ctx, barrel); err != nil {
		return nil, err
	}

	s.appendLog(ctx, barrel, actor, "weight_update", "", barrel.Condition,
		fmt.Sprintf("称重回填，故障率 %.2f%%", barrel.FaultPercent))

	if lumbed {
		if err := s.ensureLumbTicket(ctx, barrel, actor); err != nil {
			return nil, err
		}
	}

	return s.barrelRepo.FindByID(ctx, id)
}

// ensureLumbTicket 结块判定后确保有且只有一张未关闭工单
func (s *ConditionService) ensureLumbTicket(ctx context.Context, barrel *entity.Barrel, actor auth.Actor) error {
	existing, err := s.ticketRepo.FindOpenByBarrel(ctx, barrel.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	code, err := s.ticketRepo.GenerateCode(ctx)
	if err != nil {
		return fmt.Errorf("生成工单编码失败: %w", err)
	}

	fault := barrel.FaultPercent
	ticket := &entity.DamageTicket{
		ID:           uuid.New().String()[:32],
		TicketCode:   code,
		BarrelID:     barrel.ID,
		ReporterID:   actor.ID,
		DamageType:   entity.DamageTypeLumbed,
		FaultPercent: &fault,
		Status:       entity.TicketStatusAssigned,
		AssignedTo:   entity.AssignLumbRemoval,
	}
	if err := s.ticketRepo.Create(ctx, ticket); err != nil {
		return err
	}

	s.appendLog(ctx, barrel, actor, "ticket_open", "", "",
		fmt.Sprintf("故障率 %.2f%% 超阈值 %.2f%%，开立工单 %s", fault, s.threshold, code))
	s.notifier.NotifyRoles([]string{auth.RoleManager, auth.RoleAdmin}, notify.Message{
		Title:   "木桶结块告警",
		Content: fmt.Sprintf("木桶 %s 故障率 %.2f%%，已开立清理工单 %s", barrel.Code, fault, code),
		Meta:    map[string]string{"barrel_id": barrel.ID, "ticket_id": ticket.ID},
	})
	return nil
}

// CreateTicketRequest 手工上报损坏请求
type CreateTicketRequest struct {
	DamageType   string   `json:"damage_type" binding:"required"`
	FaultPercent *float64 `json:"fault_percent"`
	Notes        string   `json:"notes"`
}

// CreateTicket 采胶员/化验员/经理手工上报损坏
func (s *ConditionService) CreateTicket(ctx context.Context, actor auth.Actor, barrelID string, req *CreateTicketRequest) (*entity.DamageTicket, error) {
	if !actor.HasAnyRole(auth.RoleFieldStaff, auth.RoleLabStaff, auth.RoleManager) {
		return nil, apperr.Authorization("当前角色不允许上报损坏")
	}
	if req.DamageType != entity.DamageTypeLumbed && req.DamageType != entity.DamageTypePhysical {
		return nil, apperr.Validation("未知损坏类型 %s", req.DamageType)
	}
	if req.DamageType == entity.DamageTypeLumbed && req.FaultPercent == nil {
		return nil, apperr.Validation("结块损坏必须提供故障率")
	}

	barrel, err := s.barrelRepo.FindByID(ctx, barrelID)
	if err != nil {
		return nil, err
	}
	if barrel.IsDisposed() {
		return nil, apperr.Conflict("木桶 %s 已报废，不允许上报", barrel.Code)
	}

	existing, err := s.ticketRepo.FindOpenByBarrel(ctx, barrelID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("木桶 %s 已有未关闭工单 %s", barrel.Code, existing.TicketCode)
	}

	code, err := s.ticketRepo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成工单编码失败: %w", err)
	}

	ticket := &entity.DamageTicket{
		ID:           uuid.New().String()[:32],
		TicketCode:   code,
		BarrelID:     barrelID,
		ReporterID:   actor.ID,
		DamageType:   req.DamageType,
		FaultPercent: req.FaultPercent,
		Status:       entity.TicketStatusOpen,
		AssignedTo:   entity.AssignNone,
		Notes:        req.Notes,
	}
	if err := s.ticketRepo.Create(ctx, ticket); err != nil {
		return nil, err
	}

	fromCondition := barrel.Condition
	barrel.Condition = entity.ConditionDamaged
	barrel.DamageType = req.DamageType
	barrel.UpdatedAt = time.Now()
	if err := s.barrelRepo.Update(ctx, barrel); err != nil {
		return nil, err
	}

	s.appendLog(ctx, barrel, actor, "ticket_open", fromCondition, entity.ConditionDamaged,
		fmt.Sprintf("手工上报损坏（%s），工单 %s", req.DamageType, code))
	s.notifier.NotifyRoles([]string{auth.RoleManager}, notify.Message{
		Title:   "木桶损坏上报",
		Content: fmt.Sprintf("木桶 %s 被上报损坏（%s），请指派处置", barrel.Code, req.DamageType),
		Meta:    map[string]string{"barrel_id": barrelID, "ticket_id": ticket.ID},
	})

	return ticket, nil
}

// ListTickets 查询工单列表
func (s *ConditionService) ListTickets(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.DamageTicket, int64, error) {
	return s.ticketRepo.FindAll(ctx, page, pageSize, filters)
}

// GetTicket 查询工单详情
func (s *ConditionService) GetTicket(ctx context.Context, id string) (*entity.DamageTicket, error) {
	return s.ticketRepo.FindByID(ctx, id)
}

// AssignTicketRequest 工单处置指派请求
type AssignTicketRequest struct {
	AssignTo string `json:"assign_to" binding:"required"`
	Notes    string `json:"notes"`
}

var validAssignments = map[string]bool{
	entity.AssignLumbRemoval: true,
	entity.AssignRepair:      true,
	entity.AssignScrap:       true,
	entity.AssignInspection:  true,
}

// AssignTicket 经理指派处置去向；scrap直接报废木桶
func (s *ConditionService) AssignTicket(ctx context.Context, actor auth.Actor, id string, req *AssignTicketRequest) (*entity.DamageTicket, error) {
	if !actor.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("只有经理可以指派处置")
	}
	if !validAssignments[req.AssignTo] {
		return nil, apperr.Validation("未知处置去向 %s", req.AssignTo)
	}

	ticket, err := s.ticketRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ticket.IsOpen() {
		return nil, apperr.Conflict("工单 %s 已关闭，不允许指派", ticket.TicketCode)
	}

	barrel, err := s.barrelRepo.FindByID(ctx, ticket.BarrelID)
	if err != nil {
		return nil, err
	}

	if req.AssignTo == entity.AssignScrap {
		now := time.Now()
		ticket.Status = entity.TicketStatusScrapped
		ticket.AssignedTo = entity.AssignScrap
		ticket.ResolvedAt = &now
		if err := s.ticketRepo.Update(ctx, ticket); err != nil {
			return nil, err
		}

		fromZone := barrel.Zone
		barrel.Condition = entity.ConditionScrap
		barrel.Zone = entity.ZoneScrapYard
		barrel.UpdatedAt = now
		if err := s.barrelRepo.Update(ctx, barrel); err != nil {
			return nil, err
		}

		s.appendLog(ctx, barrel, actor, "scrap", entity.ConditionDamaged, entity.ConditionScrap,
			fmt.Sprintf("工单 %s 判定报废，移入报废区（原区域 %s）", ticket.TicketCode, fromZone))
		return ticket, nil
	}

	ticket.Status = entity.TicketStatusAssigned
	ticket.AssignedTo = req.AssignTo
	if req.Notes != "" {
		ticket.Notes = req.Notes
	}
	if err := s.ticketRepo.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.appendLog(ctx, barrel, actor, "ticket_assign", "", "",
		fmt.Sprintf("工单 %s 指派处置：%s", ticket.TicketCode, req.AssignTo))
	return ticket, nil
}

func (s *ConditionService) appendLog(ctx context.Context, barrel *entity.Barrel, actor auth.Actor, action, from, to, content string) {
	err := s.recorder.Append(ctx, &audit.ActivityLog{
		EntityType:   entityTypeBarrel,
		EntityID:     barrel.ID,
		EntityCode:   barrel.Code,
		Action:       action,
		FromStatus:   from,
		ToStatus:     to,
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
