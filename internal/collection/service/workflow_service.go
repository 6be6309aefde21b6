package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/hevea/internal/collection/entity"
	"github.com/bitfantasy/hevea/internal/collection/repository"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/bitfantasy/hevea/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowService 采集单主流程编排
// 9级流水线，每个转换由唯一角色执行；状态变更是以(id, 期望前置状态)
// 为键的条件更新，前置状态不匹配直接失败，绝不静默纠正
type WorkflowService struct {
	requestRepo  *repository.RequestRepository
	supplierRepo *repository.SupplierRepository
	quota        *QuotaGuard
	recorder     *audit.Recorder
	notifier     *notify.Dispatcher
	logger       *zap.Logger
}

func NewWorkflowService(
	requestRepo *repository.RequestRepository,
	supplierRepo *repository.SupplierRepository,
	quota *QuotaGuard,
	recorder *audit.Recorder,
	notifier *notify.Dispatcher,
	logger *zap.Logger,
) *WorkflowService {
	return &WorkflowService{
		requestRepo:  requestRepo,
		supplierRepo: supplierRepo,
		quota:        quota,
		recorder:     recorder,
		notifier:     notifier,
		logger:       logger,
	}
}

const entityTypeRequest = "request"

// List 查询采集单列表
func (s *WorkflowService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.CollectionRequest, int64, error) {
	return s.requestRepo.FindAll(ctx, page, pageSize, filters)
}

// Get 查询采集单详情
func (s *WorkflowService) Get(ctx context.Context, id string) (*entity.CollectionRequest, error) {
	return s.requestRepo.FindByID(ctx, id)
}

// Timeline 查询采集单操作时间线
func (s *WorkflowService) Timeline(ctx context.Context, id string) ([]audit.ActivityLog, error) {
	if _, err := s.requestRepo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.recorder.FindByEntity(ctx, entityTypeRequest, id)
}

// CreateRequestRequest 供应商申报采集请求
type CreateRequestRequest struct {
	SupplierID string  `json:"supplier_id" binding:"required"`
	QuantityKg float64 `json:"quantity_kg" binding:"required"`
	Notes      string  `json:"notes"`
}

// Create 供应商提交采集申报（经配额守卫准入）
func (s *WorkflowService) Create(ctx context.Context, actor auth.Actor, req *CreateRequestRequest) (*entity.CollectionRequest, error) {
	if !actor.HasAnyRole(auth.RoleSupplier, auth.RoleManager) {
		return nil, apperr.Authorization("只有供应商或经理可以提交采集申报")
	}
	if req.QuantityKg <= 0 {
		return nil, apperr.Validation("申报量必须大于0")
	}

	supplier, err := s.supplierRepo.FindByID(ctx, req.SupplierID)
	if err != nil {
		return nil, err
	}
	if supplier.Status != "active" {
		return nil, apperr.Validation("供应商 %s 已停用", supplier.Code)
	}

	record := &entity.CollectionRequest{
		ID:          uuid.New().String()[:32],
		SupplierID:  supplier.ID,
		CreatedBy:   actor.ID,
		Status:      entity.StatusRequested,
		QuantityKg:  req.QuantityKg,
		RequestedAt: time.Now(),
		Notes:       req.Notes,
	}

	// 配额校验与创建在同一供应商临界区内完成
	err = s.quota.Admit(ctx, supplier.ID, req.QuantityKg, func(ctx context.Context) error {
		code, err := s.requestRepo.GenerateCode(ctx)
		if err != nil {
			return fmt.Errorf("生成采集单编码失败: %w", err)
		}
		record.ReqCode = code
		return s.requestRepo.Create(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "create", "", entity.StatusRequested,
		fmt.Sprintf("申报采集 %.2fkg", req.QuantityKg))
	s.notifier.NotifyRoles([]string{auth.RoleManager}, notify.Message{
		Title:   "新采集申报",
		Content: fmt.Sprintf("供应商 %s 申报采集 %.2fkg（%s），请指派采胶员", supplier.Name, req.QuantityKg, record.ReqCode),
		Meta:    map[string]string{"request_id": record.ID},
	})

	return s.requestRepo.FindByID(ctx, record.ID)
}

// AssignStaffRequest 指派人员请求
type AssignStaffRequest struct {
	StaffID string `json:"staff_id" binding:"required"`
}

// AssignFieldStaff 经理指派采胶员：requested → field_assigned
func (s *WorkflowService) AssignFieldStaff(ctx context.Context, actor auth.Actor, id string, req *AssignStaffRequest) (*entity.CollectionRequest, error) {
	if !actor.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("只有经理可以指派采胶员")
	}

	record, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != entity.StatusRequested {
		return nil, s.stageConflict(record, entity.StatusFieldAssigned, "指派采胶员")
	}

	err = s.requestRepo.TransitionStatus(ctx, id, entity.StatusRequested, map[string]interface{}{
		"status":         entity.StatusFieldAssigned,
		"field_staff_id": req.StaffID,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "status_change", entity.StatusRequested, entity.StatusFieldAssigned,
		"指派采胶员 "+req.StaffID)
	s.notifier.NotifyUsers([]string{req.StaffID}, notify.Message{
		Title:   "新采集任务",
		Content: fmt.Sprintf("采集单 %s 已指派给你，请前往现场采集", record.ReqCode),
		Meta:    map[string]string{"request_id": id},
	})

	return s.requestRepo.FindByID(ctx, id)
}

// CollectRequest 现场采集回填请求
type CollectRequest struct {
	TotalVolumeKg float64  `json:"total_volume_kg" binding:"required"`
	BarrelCodes   []string `json:"barrel_codes"`
	FieldNotes    string   `json:"field_notes"`
}

// Collect 被指派的采胶员回填采集量：field_assigned → collected
func (s *WorkflowService) Collect(ctx context.Context, actor auth.Actor, id string, req *CollectRequest) (*entity.CollectionRequest, error) {
	if !actor.HasRole(auth.RoleFieldStaff) {
		return nil, apperr.Authorization("只有采胶员可以回填采集量")
	}
	if req.TotalVolumeKg <= 0 {
		return nil, apperr.Validation("采集量必须大于0")
	}

	record, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.FieldStaffID == nil || *record.FieldStaffID != actor.ID {
		return nil, apperr.Authorization("只有被指派的采胶员可以操作该采集单")
	}
	if record.Status != entity.StatusFieldAssigned {
		return nil, s.stageConflict(record, entity.StatusCollected, "回填采集量")
	}

	now := time.Now()
	err = s.requestRepo.TransitionStatus(ctx, id, entity.StatusFieldAssigned, map[string]interface{}{
		"status":          entity.StatusCollected,
		"total_volume_kg": req.TotalVolumeKg,
		"barrel_codes":    entity.StringArray(req.BarrelCodes),
		"field_notes":     req.FieldNotes,
		"collected_at":    now,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "status_change", entity.StatusFieldAssigned, entity.StatusCollected,
		fmt.Sprintf("实际采集 %.2fkg，用桶 %d 只", req.TotalVolumeKg, len(req.BarrelCodes)))
	s.notifier.NotifyRoles([]string{auth.RoleManager}, notify.Message{
		Title:   "采集完成",
		Content: fmt.Sprintf("采集单 %s 已采集 %.2fkg，请指派送检员", record.ReqCode, req.TotalVolumeKg),
		Meta:    map[string]string{"request_id": id},
	})

	return s.requestRepo.FindByID(ctx, id)
}

// AssignDeliveryStaff 经理指派送检员：collected → deliver_assigned
func (s *WorkflowService) AssignDeliveryStaff(ctx context.Context, actor auth.Actor, id string, req *AssignStaffRequest) (*entity.CollectionRequest, error) {
	if !actor.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("只有经理可以指派送检员")
	}

	record, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != entity.StatusCollected {
		return nil, s.stageConflict(record, entity.StatusDeliverAssigned, "指派送检员")
	}

	err = s.requestRepo.TransitionStatus(ctx, id, entity.StatusCollected, map[string]interface{}{
		"status":            entity.StatusDeliverAssigned,
		"delivery_staff_id": req.StaffID,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "status_change", entity.StatusCollected, entity.StatusDeliverAssigned,
		"指派送检员 "+req.StaffID)
	s.notifier.NotifyUsers([]string{req.StaffID}, notify.Message{
		Title:   "新送检任务",
		Content: fmt.Sprintf("采集单 %s 已指派给你，请送往化验室", record.ReqCode),
		Meta:    map[string]string{"request_id": id},
	})

	return s.requestRepo.FindByID(ctx, id)
}

// Deliver 被指派的送检员确认送达化验室：deliver_assigned → delivered_to_lab
func (s *WorkflowService) Deliver(ctx context.Context, actor auth.Actor, id string) (*entity.CollectionRequest, error) {
	if !actor.HasRole(auth.RoleDeliveryStaff) {
		return nil, apperr.Authorization("只有送检员可以确认送达")
	}

	record, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.DeliveryStaffID == nil || *record.DeliveryStaffID != actor.ID {
		return nil, apperr.Authorization("只有被指派的送检员可以操作该采集单")
	}
	if record.Status != entity.StatusDeliverAssigned {
		return nil, s.stageConflict(record, entity.StatusDeliveredToLab, "确认送达")
	}

	now := time.Now()
	err = s.requestRepo.TransitionStatus(ctx, id, entity.StatusDeliverAssigned, map[string]interface{}{
		"status":       entity.StatusDeliveredToLab,
		"delivered_at": now,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "status_change", entity.StatusDeliverAssigned, entity.StatusDeliveredToLab, "送达化验室")
	s.notifier.NotifyRoles([]string{auth.RoleLabStaff}, notify.Message{
		Title:   "待化验样品",
		Content: fmt.Sprintf("采集单 %s 已送达，请测定DRC", record.ReqCode),
		Meta:    map[string]string{"request_id": id},
	})

	return s.requestRepo.FindByID(ctx, id)
}

// TestRequest 化验结果请求
type TestRequest struct {
	DRCPercent float64 `json:"drc_percent" binding:"required"`
}

// Test 化验员录入DRC：delivered_to_lab → tested
func (s *WorkflowService) Test(ctx context.Context, actor auth.Actor, id string, req *TestRequest) (*entity.CollectionRequest, error) {
	if !actor.HasRole(auth.RoleLabStaff) {
		return nil, apperr.Authorization("只有化验员可以录入DRC")
	}
	if req.DRCPercent <= 0 || req.DRCPercent > 100 {
		return nil, apperr.Validation("DRC必须在0到100之间")
	}

	record, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != entity.StatusDeliveredToLab {
		return nil, s.stageConflict(record, entity.StatusTested, "录入DRC")
	}

	now := time.Now()
	err = s.requestRepo.TransitionStatus(ctx, id, entity.StatusDeliveredToLab, map[string]interface{}{
		"status":      entity.StatusTested,
		"drc_percent": req.DRCPercent,
		"tested_at":   now,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "status_change", entity.StatusDeliveredToLab, entity.StatusTested,
		fmt.Sprintf("DRC测定 %.2f%%", req.DRCPercent))
	s.notifier.NotifyRoles([]string{auth.RoleAccountant}, notify.Message{
		Title:   "待核算采集单",
		Content: fmt.Sprintf("采集单 %s DRC已测定，请核算金额", record.ReqCode),
		Meta:    map[string]string{"request_id": id},
	})

	return s.requestRepo.FindByID(ctx, id)
}

// CalculateRequest 核算请求
type CalculateRequest struct {
	MarketRate float64 `json:"market_rate" binding:"required"`
}

// Calculate 会计按市场价核算金额：tested → account_calculated
// 金额推导见 DeriveInvoice：dryKg = 总量×DRC/100，amount四舍五入到整数
func (s *WorkflowService) Calculate(ctx context.Context, actor auth.Actor, id string, req *CalculateRequest) (*entity.CollectionRequest, error) {
	if !actor.HasRole(auth.RoleAccountant) {
		return nil, apperr.Authorization("只有会计可以核算金额")
	}
	if req.MarketRate <= 0 {
		return nil, apperr.Validation("市场价必须大于0")
	}

	record, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// DRC缺失属于输入缺陷而非状态冲突：还在送检阶段的单子据此报验证错误
	if record.DRCPercent == nil {
		return nil, apperr.Validation("DRC尚未测定，无法核算")
	}
	if record.TotalVolumeKg == nil {
		return nil, apperr.Validation("采集量缺失，无法核算")
	}
	if record.Status != entity.StatusTested {
		return nil, s.stageConflict(record, entity.StatusAccountCalculated, "核算金额")
	}

	dryKg, amount := DeriveInvoice(*record.TotalVolumeKg, *record.DRCPercent, req.MarketRate)

	now := time.Now()
	err = s.requestRepo.TransitionStatus(ctx, id, entity.StatusTested, map[string]interface{}{
		"status":        entity.StatusAccountCalculated,
		"market_rate":   req.MarketRate,
		"dry_kg":        dryKg,
		"amount":        amount,
		"calculated_at": now,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "status_change", entity.StatusTested, entity.StatusAccountCalculated,
		fmt.Sprintf("核算：干胶 %.2fkg × %.2f = %.0f", dryKg, req.MarketRate, amount))
	s.notifier.NotifyRoles([]string{auth.RoleManager}, notify.Message{
		Title:   "待复核采集单",
		Content: fmt.Sprintf("采集单 %s 已核算金额 %.0f，请复核", record.ReqCode, amount),
		Meta:    map[string]string{"request_id": id},
	})

	return s.requestRepo.FindByID(ctx, id)
}

// Verify 经理复核通过并生成发票号：account_calculated → verified
// 发票号只生成一次；复核后任何重算尝试都会因前置状态不匹配而失败
func (s *WorkflowService) Verify(ctx context.Context, actor auth.Actor, id string) (*entity.CollectionRequest, error) {
	if !actor.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("只有经理可以复核")
	}

	record, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != entity.StatusAccountCalculated {
		return nil, s.stageConflict(record, entity.StatusVerified, "复核")
	}
	if record.Amount == nil || record.MarketRate == nil {
		return nil, apperr.Validation("金额或市场价缺失，无法复核")
	}
	if record.InvoiceNo != "" {
		return nil, apperr.Conflict("发票号已生成，禁止重新生成")
	}

	now := time.Now()
	err = s.requestRepo.TransitionStatus(ctx, id, entity.StatusAccountCalculated, map[string]interface{}{
		"status":      entity.StatusVerified,
		"invoice_no":  InvoiceNumber(record.ID),
		"verified_at": now,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "status_change", entity.StatusAccountCalculated, entity.StatusVerified,
		"复核通过，生成发票 "+InvoiceNumber(record.ID))
	s.notifier.NotifyRoles([]string{auth.RoleAccountant}, notify.Message{
		Title:   "采集单已复核",
		Content: fmt.Sprintf("采集单 %s 复核通过，可安排付款开票", record.ReqCode),
		Meta:    map[string]string{"request_id": id},
	})

	return s.requestRepo.FindByID(ctx, id)
}

// ReviewRequest 复核意见
type ReviewRequest struct {
	Reason string `json:"reason"`
}

// Reject 经理驳回：account_calculated → rejected_by_manager（终止态）
func (s *WorkflowService) Reject(ctx context.Context, actor auth.Actor, id string, req *ReviewRequest) (*entity.CollectionRequest, error) {
	return s.review(ctx, actor, id, entity.StatusRejectedByManager, "驳回", req.Reason)
}

// ReturnToAccountant 经理退回会计：account_calculated → returned_to_accountant（终止态）
// 修正路径不在本系统范围内，退回后的单子不再参与流转
func (s *WorkflowService) ReturnToAccountant(ctx context.Context, actor auth.Actor, id string, req *ReviewRequest) (*entity.CollectionRequest, error) {
	return s.review(ctx, actor, id, entity.StatusReturnedToAccountant, "退回会计", req.Reason)
}

func (s *WorkflowService) review(ctx context.Context, actor auth.Actor, id, toStatus, action, reason string) (*entity.CollectionRequest, error) {
	if !actor.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("只有经理可以%s", action)
	}

	record, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != entity.StatusAccountCalculated {
		return nil, apperr.Conflict("当前状态 %s 不允许%s", record.Status, action)
	}

	err = s.requestRepo.TransitionStatus(ctx, id, entity.StatusAccountCalculated, map[string]interface{}{
		"status": toStatus,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "status_change", entity.StatusAccountCalculated, toStatus, action+"："+reason)
	s.notifier.NotifyRoles([]string{auth.RoleAccountant}, notify.Message{
		Title:   "采集单被" + action,
		Content: fmt.Sprintf("采集单 %s 被%s：%s", record.ReqCode, action, reason),
		Meta:    map[string]string{"request_id": id},
	})

	return s.requestRepo.FindByID(ctx, id)
}

// MarkInvoiced 会计确认付款开票完成：verified → invoiced
// 发票号与金额在verified时已固定，此处只推进状态并释放配额占用
func (s *WorkflowService) MarkInvoiced(ctx context.Context, actor auth.Actor, id string) (*entity.CollectionRequest, error) {
	if !actor.HasRole(auth.RoleAccountant) {
		return nil, apperr.Authorization("只有会计可以确认开票")
	}

	record, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != entity.StatusVerified {
		return nil, s.stageConflict(record, entity.StatusInvoiced, "确认开票")
	}

	now := time.Now()
	err = s.requestRepo.TransitionStatus(ctx, id, entity.StatusVerified, map[string]interface{}{
		"status":      entity.StatusInvoiced,
		"invoiced_at": now,
	})
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, record, actor, "status_change", entity.StatusVerified, entity.StatusInvoiced,
		"开票完成 "+record.InvoiceNo)
	if record.Supplier != nil && record.Supplier.UserID != nil {
		s.notifier.NotifyUsers([]string{*record.Supplier.UserID}, notify.Message{
			Title:   "采集款已开票",
			Content: fmt.Sprintf("采集单 %s 已开票，金额 %.0f", record.ReqCode, *record.Amount),
			Meta:    map[string]string{"request_id": id},
		})
	}

	return s.requestRepo.FindByID(ctx, id)
}

// stageConflict 构造阶段冲突错误：区分“已进入后续阶段”“尚未到达”“已终止”
func (s *WorkflowService) stageConflict(record *entity.CollectionRequest, target, action string) error {
	if entity.IsTerminal(record.Status) {
		return apperr.Conflict("采集单已终止（%s），不允许%s", record.Status, action)
	}
	cur := entity.StageOf(record.Status)
	want := entity.StageOf(target)
	if cur >= want {
		return apperr.Conflict("已%s或已进入后续阶段（当前 %s）", action, record.Status)
	}
	return apperr.Conflict("当前状态 %s 尚不允许%s", record.Status, action)
}

func (s *WorkflowService) appendLog(ctx context.Context, record *entity.CollectionRequest, actor auth.Actor, action, from, to, content string) {
	err := s.recorder.Append(ctx, &audit.ActivityLog{
		EntityType:   entityTypeRequest,
		EntityID:     record.ID,
		EntityCode:   record.ReqCode,
		Action:       action,
		FromStatus:   from,
		ToStatus:     to,
		Content:      content,
		OperatorID:   actor.ID,
		OperatorName: actor.Name,
	})
	if err != nil {
		s.logger.Warn("append activity log failed",
			zap.String("request_id", record.ID),
			zap.Error(err))
	}
}
