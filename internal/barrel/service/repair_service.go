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
	"github.com/bitfantasy/hevea/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RepairService 修复/清理任务流程
// in-progress → awaiting-approval → completed | rejected；
// 审批通过才关闭工单并恢复木桶，驳回只把木桶退回损坏态
type RepairService struct {
	barrelRepo  *repository.BarrelRepository
	ticketRepo  *repository.TicketRepository
	repairRepo  *repository.RepairRepository
	recorder    *audit.Recorder
	notifier    *notify.Dispatcher
	defaultZone string
	logger      *zap.Logger
}

func NewRepairService(
	barrelRepo *repository.BarrelRepository,
	ticketRepo *repository.TicketRepository,
	repairRepo *repository.RepairRepository,
	recorder *audit.Recorder,
	notifier *notify.Dispatcher,
	defaultZone string,
	logger *zap.Logger,
) *RepairService {
	return &RepairService{
		barrelRepo:  barrelRepo,
		ticketRepo:  ticketRepo,
		repairRepo:  repairRepo,
		recorder:    recorder,
		notifier:    notifier,
		defaultZone: defaultZone,
		logger:      logger,
	}
}

// 任务类型对应的作业区
var jobZones = map[string]string{
	entity.JobTypeLumbRemoval: entity.ZoneLumbBay,
	entity.JobTypeRepair:      entity.ZoneRepairBay,
}

// OpenRepairRequest 开启修复任务请求
type OpenRepairRequest struct {
	JobType string `json:"job_type" binding:"required"`
	Notes   string `json:"notes"`
}

// Open 对损坏木桶开启修复/清理任务，桶移入对应作业区
func (s *RepairService) Open(ctx context.Context, actor auth.Actor, barrelID string, req *OpenRepairRequest) (*entity.RepairJob, error) {
	if !actor.HasAnyRole(auth.RoleFieldStaff, auth.RoleManager) {
		return nil, apperr.Authorization("当前角色不允许开启修复任务")
	}
	zone, ok := jobZones[req.JobType]
	if !ok {
		return nil, apperr.Validation("未知任务类型 %s", req.JobType)
	}

	barrel, err := s.barrelRepo.FindByID(ctx, barrelID)
	if err != nil {
		return nil, err
	}
	if barrel.IsDisposed() {
		return nil, apperr.Conflict("木桶 %s 已报废，不允许修复", barrel.Code)
	}
	if barrel.Condition != entity.ConditionDamaged {
		return nil, apperr.Conflict("木桶 %s 当前状态 %s，只有损坏桶可开启修复任务", barrel.Code, barrel.Condition)
	}

	active, err := s.repairRepo.FindActiveByBarrel(ctx, barrelID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperr.Conflict("木桶 %s 已有进行中的任务 %s", barrel.Code, active.JobCode)
	}

	code, err := s.repairRepo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成任务编码失败: %w", err)
	}

	job := &entity.RepairJob{
		ID:       uuid.New().String()[:32],
		JobCode:  code,
		BarrelID: barrelID,
		JobType:  req.JobType,
		OpenedBy: actor.ID,
		Status:   entity.JobStatusInProgress,
		Notes:    req.Notes,
	}

	// 关联当前未关闭工单（若有）
	ticket, err := s.ticketRepo.FindOpenByBarrel(ctx, barrelID)
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		job.TicketID = &ticket.ID
	}

	if err := s.repairRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	fromZone := barrel.Zone
	barrel.Condition = req.JobType
	barrel.Zone = zone
	barrel.UpdatedAt = time.Now()
	if err := s.barrelRepo.Update(ctx, barrel); err != nil {
		return nil, err
	}

	s.appendLog(ctx, barrel, actor, "repair_open", entity.ConditionDamaged, req.JobType, fromZone, zone,
		fmt.Sprintf("开启任务 %s（%s）", code, req.JobType))
	return s.repairRepo.FindByID(ctx, job.ID)
}

// List 查询任务列表
func (s *RepairService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.RepairJob, int64, error) {
	return s.repairRepo.FindAll(ctx, page, pageSize, filters)
}

// Get 查询任务详情
func (s *RepairService) Get(ctx context.Context, id string) (*entity.RepairJob, error) {
	return s.repairRepo.FindByID(ctx, id)
}

// WorkLogRequest 施工记录请求
type WorkLogRequest struct {
	Step string `json:"step" binding:"required"`
	Note string `json:"note"`
}

// AppendWorkLog 追加施工记录，只允许进行中的任务
func (s *RepairService) AppendWorkLog(ctx context.Context, actor auth.Actor, id string, req *WorkLogRequest) (*entity.RepairJob, error) {
	if !actor.HasAnyRole(auth.RoleFieldStaff, auth.RoleManager) {
		return nil, apperr.Authorization("当前角色不允许记录施工")
	}

	job, err := s.repairRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobStatusInProgress {
		return nil, apperr.Conflict("任务 %s 当前状态 %s，不允许追加施工记录", job.JobCode, job.Status)
	}

	job.WorkLog = append(job.WorkLog, entity.WorkLogEntry{
		Step:      req.Step,
		Note:      req.Note,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Time:      time.Now(),
	})
	if err := s.repairRepo.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Complete 施工完成，转待审批
func (s *RepairService) Complete(ctx context.Context, actor auth.Actor, id string) (*entity.RepairJob, error) {
	if !actor.HasAnyRole(auth.RoleFieldStaff, auth.RoleManager) {
		return nil, apperr.Authorization("当前角色不允许提交完工")
	}

	job, err := s.repairRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobStatusInProgress {
		return nil, apperr.Conflict("任务 %s 当前状态 %s，不允许提交完工", job.JobCode, job.Status)
	}

	job.Status = entity.JobStatusAwaitingApproval
	if err := s.repairRepo.Update(ctx, job); err != nil {
		return nil, err
	}

	if job.Barrel != nil {
		s.appendLog(ctx, job.Barrel, actor, "repair_complete", "", "", "", "",
			fmt.Sprintf("任务 %s 完工，待审批", job.JobCode))
	}
	s.notifier.NotifyRoles([]string{auth.RoleManager, auth.RoleAdmin}, notify.Message{
		Title:   "修复任务待审批",
		Content: fmt.Sprintf("任务 %s 已完工，请审批", job.JobCode),
		Meta:    map[string]string{"job_id": job.ID},
	})
	return job, nil
}

// Approve 审批通过：任务completed，关闭工单，木桶恢复可用并回默认区
func (s *RepairService) Approve(ctx context.Context, actor auth.Actor, id string) (*entity.RepairJob, error) {
	if !actor.HasAnyRole(auth.RoleManager, auth.RoleAdmin) {
		return nil, apperr.Authorization("只有经理或管理员可以审批")
	}

	job, err := s.repairRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobStatusAwaitingApproval {
		return nil, apperr.Conflict("任务 %s 当前状态 %s，不允许审批", job.JobCode, job.Status)
	}

	now := time.Now()
	job.Status = entity.JobStatusCompleted
	job.ApprovedBy = &actor.ID
	job.ApprovedAt = &now
	if err := s.repairRepo.Update(ctx, job); err != nil {
		return nil, err
	}

	// 关闭仍未关闭的工单
	ticket, err := s.ticketRepo.FindOpenByBarrel(ctx, job.BarrelID)
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		ticket.Status = entity.TicketStatusResolved
		ticket.ResolvedAt = &now
		if err := s.ticketRepo.Update(ctx, ticket); err != nil {
			return nil, err
		}
	}

	barrel, err := s.barrelRepo.FindByID(ctx, job.BarrelID)
	if err != nil {
		return nil, err
	}
	fromCondition := barrel.Condition
	fromZone := barrel.Zone
	barrel.Condition = entity.ConditionOK
	barrel.DamageType = ""
	barrel.FaultPercent = 0
	barrel.EmptyWeightKg = nil
	barrel.Zone = s.defaultZone
	barrel.UpdatedAt = now
	if err := s.barrelRepo.Update(ctx, barrel); err != nil {
		return nil, err
	}

	s.appendLog(ctx, barrel, actor, "repair_approve", fromCondition, entity.ConditionOK, fromZone, s.defaultZone,
		fmt.Sprintf("任务 %s 审批通过，木桶恢复可用", job.JobCode))
	return s.repairRepo.FindByID(ctx, id)
}

// RejectRepairRequest 驳回意见
type RejectRepairRequest struct {
	Reason string `json:"reason"`
}

// Reject 审批驳回：任务rejected，木桶退回损坏态；不会重开工单
func (s *RepairService) Reject(ctx context.Context, actor auth.Actor, id string, req *RejectRepairRequest) (*entity.RepairJob, error) {
	if !actor.HasAnyRole(auth.RoleManager, auth.RoleAdmin) {
		return nil, apperr.Authorization("只有经理或管理员可以驳回")
	}

	job, err := s.repairRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobStatusAwaitingApproval {
		return nil, apperr.Conflict("任务 %s 当前状态 %s，不允许驳回", job.JobCode, job.Status)
	}

	job.Status = entity.JobStatusRejected
	if req.Reason != "" {
		job.Notes = req.Reason
	}
	if err := s.repairRepo.Update(ctx, job); err != nil {
		return nil, err
	}

	barrel, err := s.barrelRepo.FindByID(ctx, job.BarrelID)
	if err != nil {
		return nil, err
	}
	fromCondition := barrel.Condition
	barrel.Condition = entity.ConditionDamaged
	barrel.UpdatedAt = time.Now()
	if err := s.barrelRepo.Update(ctx, barrel); err != nil {
		return nil, err
	}

	s.appendLog(ctx, barrel, actor, "repair_reject", fromCondition, entity.ConditionDamaged, "", "",
		fmt.Sprintf("任务 %s 被驳回：%s", job.JobCode, req.Reason))
	s.notifier.NotifyUsers([]string{job.OpenedBy}, notify.Message{
		Title:   "修复任务被驳回",
		Content: fmt.Sprintf("任务 %s 被驳回：%s", job.JobCode, req.Reason),
		Meta:    map[string]string{"job_id": job.ID},
	})
	return job, nil
}

func (s *RepairService) appendLog(ctx context.Context, barrel *entity.Barrel, actor auth.Actor, action, from, to, fromZone, toZone, content string) {
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
