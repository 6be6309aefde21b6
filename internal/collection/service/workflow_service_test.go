package service

import (
	"context"
	"testing"

	"github.com/bitfantasy/hevea/internal/collection/entity"
	"github.com/bitfantasy/hevea/internal/collection/repository"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/bitfantasy/hevea/internal/shared/notify"
	"github.com/bitfantasy/hevea/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	supplierActor   = auth.Actor{ID: "user-supplier", Name: "供应商A", Roles: []string{auth.RoleSupplier}}
	managerActor    = auth.Actor{ID: "user-manager", Name: "经理", Roles: []string{auth.RoleManager}}
	fieldActor      = auth.Actor{ID: "user-field", Name: "采胶员", Roles: []string{auth.RoleFieldStaff}}
	deliveryActor   = auth.Actor{ID: "user-delivery", Name: "送检员", Roles: []string{auth.RoleDeliveryStaff}}
	labActor        = auth.Actor{ID: "user-lab", Name: "化验员", Roles: []string{auth.RoleLabStaff}}
	accountantActor = auth.Actor{ID: "user-accountant", Name: "会计", Roles: []string{auth.RoleAccountant}}
)

func setupWorkflowTest(t *testing.T) (*gorm.DB, *WorkflowService) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	quota := NewQuotaGuard(repos.Supplier, repos.Request)
	recorder := audit.NewRecorder(db)
	notifier := notify.NewDispatcher(nil, zap.NewNop())
	svc := NewWorkflowService(repos.Request, repos.Supplier, quota, recorder, notifier, zap.NewNop())
	return db, svc
}

// advanceTo 沿流水线推进到目标状态，返回采集单ID
func advanceTo(t *testing.T, svc *WorkflowService, supplierID, target string) string {
	t.Helper()
	ctx := context.Background()

	record, err := svc.Create(ctx, supplierActor, &CreateRequestRequest{
		SupplierID: supplierID,
		QuantityKg: 200,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	id := record.ID
	if target == entity.StatusRequested {
		return id
	}

	steps := []func() error{
		func() error {
			_, err := svc.AssignFieldStaff(ctx, managerActor, id, &AssignStaffRequest{StaffID: fieldActor.ID})
			return err
		},
		func() error {
			_, err := svc.Collect(ctx, fieldActor, id, &CollectRequest{TotalVolumeKg: 200, BarrelCodes: []string{"BRL-0001"}})
			return err
		},
		func() error {
			_, err := svc.AssignDeliveryStaff(ctx, managerActor, id, &AssignStaffRequest{StaffID: deliveryActor.ID})
			return err
		},
		func() error {
			_, err := svc.Deliver(ctx, deliveryActor, id)
			return err
		},
		func() error {
			_, err := svc.Test(ctx, labActor, id, &TestRequest{DRCPercent: 30})
			return err
		},
		func() error {
			_, err := svc.Calculate(ctx, accountantActor, id, &CalculateRequest{MarketRate: 150})
			return err
		},
		func() error {
			_, err := svc.Verify(ctx, managerActor, id)
			return err
		},
		func() error {
			_, err := svc.MarkInvoiced(ctx, accountantActor, id)
			return err
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("pipeline step %d failed: %v", i, err)
		}
		record, err := svc.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if record.Status == target {
			return id
		}
	}
	t.Fatalf("never reached target status %s", target)
	return ""
}

func TestPipelineHappyPath(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 0)
	ctx := context.Background()

	id := advanceTo(t, svc, supplier.ID, entity.StatusInvoiced)

	record, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Status != entity.StatusInvoiced {
		t.Fatalf("expected status invoiced, got %s", record.Status)
	}
	// 200kg × 30% × 150 = 9000
	if record.DryKg == nil || *record.DryKg != 60 {
		t.Fatalf("expected dry_kg 60, got %v", record.DryKg)
	}
	if record.Amount == nil || *record.Amount != 9000 {
		t.Fatalf("expected amount 9000, got %v", record.Amount)
	}
	if record.InvoiceNo != InvoiceNumber(record.ID) {
		t.Fatalf("expected invoice_no %s, got %s", InvoiceNumber(record.ID), record.InvoiceNo)
	}
	if record.InvoicedAt == nil || record.VerifiedAt == nil || record.CollectedAt == nil {
		t.Fatal("expected stage timestamps to be set")
	}

	// 全程留痕：create + 8次状态转换
	var logs []audit.ActivityLog
	db.Where("entity_type = ? AND entity_id = ?", "request", id).Order("created_at ASC").Find(&logs)
	if len(logs) != 9 {
		t.Fatalf("expected 9 activity logs, got %d", len(logs))
	}
}

func TestStageTransitionConflicts(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 0)
	ctx := context.Background()

	id := advanceTo(t, svc, supplier.ID, entity.StatusCollected)

	// 重复回填 → 冲突
	_, err := svc.Collect(ctx, fieldActor, id, &CollectRequest{TotalVolumeKg: 100})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on repeated collect, got %v", err)
	}

	// 跳级送达（尚未指派送检员）→ 冲突
	_, err = svc.Deliver(ctx, deliveryActor, id)
	if !apperr.Is(err, apperr.KindAuthorization) && !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected authorization/conflict on premature deliver, got %v", err)
	}

	// 化验尚未轮到 → 冲突
	_, err = svc.Test(ctx, labActor, id, &TestRequest{DRCPercent: 30})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on premature test, got %v", err)
	}
}

func TestRoleAndAssigneeChecks(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 0)
	ctx := context.Background()

	// 非供应商/经理不能申报
	_, err := svc.Create(ctx, labActor, &CreateRequestRequest{SupplierID: supplier.ID, QuantityKg: 100})
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	id := advanceTo(t, svc, supplier.ID, entity.StatusFieldAssigned)

	// 未被指派的采胶员不能回填
	other := auth.Actor{ID: "user-field-2", Name: "其他采胶员", Roles: []string{auth.RoleFieldStaff}}
	_, err = svc.Collect(ctx, other, id, &CollectRequest{TotalVolumeKg: 100})
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error for non-assignee, got %v", err)
	}

	// 采胶员不能指派送检员
	_, err = svc.AssignDeliveryStaff(ctx, fieldActor, id, &AssignStaffRequest{StaffID: deliveryActor.ID})
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestCalculateBeforeTestIsValidation(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 0)
	ctx := context.Background()

	// DRC尚未测定时核算：输入缺陷，报验证错误而非状态冲突
	id := advanceTo(t, svc, supplier.ID, entity.StatusCollected)
	_, err := svc.Calculate(ctx, accountantActor, id, &CalculateRequest{MarketRate: 150})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error when DRC missing, got %v", err)
	}
}

func TestInvoiceImmutableAfterVerify(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 0)
	ctx := context.Background()

	id := advanceTo(t, svc, supplier.ID, entity.StatusVerified)

	record, _ := svc.Get(ctx, id)
	invoiceNo := record.InvoiceNo
	if invoiceNo == "" {
		t.Fatal("expected invoice_no to be set after verify")
	}

	// 复核后重算 → 冲突，发票号不变
	_, err := svc.Calculate(ctx, accountantActor, id, &CalculateRequest{MarketRate: 999})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on recalculate after verify, got %v", err)
	}
	_, err = svc.Verify(ctx, managerActor, id)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on double verify, got %v", err)
	}

	record, _ = svc.Get(ctx, id)
	if record.InvoiceNo != invoiceNo {
		t.Fatalf("invoice_no changed from %s to %s", invoiceNo, record.InvoiceNo)
	}
	if *record.Amount != 9000 {
		t.Fatalf("amount changed, got %v", *record.Amount)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 0)
	ctx := context.Background()

	id := advanceTo(t, svc, supplier.ID, entity.StatusAccountCalculated)

	record, err := svc.Reject(ctx, managerActor, id, &ReviewRequest{Reason: "核算价格异常"})
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if record.Status != entity.StatusRejectedByManager {
		t.Fatalf("expected rejected_by_manager, got %s", record.Status)
	}

	// 终止态后任何推进都被拒绝
	_, err = svc.Verify(ctx, managerActor, id)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict after terminal state, got %v", err)
	}
	_, err = svc.Calculate(ctx, accountantActor, id, &CalculateRequest{MarketRate: 100})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict after terminal state, got %v", err)
	}
}

func TestReturnToAccountantIsTerminal(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 0)
	ctx := context.Background()

	id := advanceTo(t, svc, supplier.ID, entity.StatusAccountCalculated)

	record, err := svc.ReturnToAccountant(ctx, managerActor, id, &ReviewRequest{Reason: "市场价取值存疑"})
	if err != nil {
		t.Fatalf("ReturnToAccountant failed: %v", err)
	}
	if record.Status != entity.StatusReturnedToAccountant {
		t.Fatalf("expected returned_to_accountant, got %s", record.Status)
	}

	// 退回不是修正路径：单子不再参与流转
	_, err = svc.Calculate(ctx, accountantActor, id, &CalculateRequest{MarketRate: 120})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on recalculate after return, got %v", err)
	}
}
