package service

import (
	"context"
	"testing"

	"github.com/bitfantasy/hevea/internal/barrel/entity"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/bitfantasy/hevea/internal/testutil"
	"gorm.io/gorm"
)

// 通过称重把木桶打成结块损坏态（带自动工单）
func flagLumbedBarrel(t *testing.T, db *gorm.DB, svcs *Services, code string) *entity.Barrel {
	t.Helper()
	barrel := testutil.SeedBarrel(t, db, code, 200)
	_, err := svcs.Condition.UpdateWeights(context.Background(), barrelLab, barrel.ID, &UpdateWeightsRequest{
		BaseWeightKg:  f64(80),
		EmptyWeightKg: f64(100),
	})
	if err != nil {
		t.Fatalf("UpdateWeights failed: %v", err)
	}
	return barrel
}

func TestRepairApproveRestoresBarrel(t *testing.T) {
	db, svcs := setupBarrelTest(t)
	barrel := flagLumbedBarrel(t, db, svcs, "BRL-0001")
	ctx := context.Background()

	job, err := svcs.Repair.Open(ctx, barrelField, barrel.ID, &OpenRepairRequest{JobType: entity.JobTypeLumbRemoval})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if job.Status != entity.JobStatusInProgress {
		t.Fatalf("expected in-progress, got %s", job.Status)
	}
	if job.TicketID == nil {
		t.Fatal("expected job linked to the open ticket")
	}

	// 开工后木桶进入清理区
	var reloaded entity.Barrel
	db.Where("id = ?", barrel.ID).First(&reloaded)
	if reloaded.Condition != entity.ConditionLumbRemoval {
		t.Fatalf("expected lumb-removal, got %s", reloaded.Condition)
	}
	if reloaded.Zone != entity.ZoneLumbBay {
		t.Fatalf("expected lumb-bay, got %s", reloaded.Zone)
	}

	// 施工记录只在进行中可追加
	if _, err := svcs.Repair.AppendWorkLog(ctx, barrelField, job.ID, &WorkLogRequest{Step: "清理结块", Note: "已刮除桶底结块"}); err != nil {
		t.Fatalf("AppendWorkLog failed: %v", err)
	}

	if _, err := svcs.Repair.Complete(ctx, barrelField, job.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	_, err = svcs.Repair.AppendWorkLog(ctx, barrelField, job.ID, &WorkLogRequest{Step: "补记"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict appending worklog after complete, got %v", err)
	}

	approved, err := svcs.Repair.Approve(ctx, barrelManager, job.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != entity.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", approved.Status)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != barrelManager.ID {
		t.Fatalf("expected approved_by %s, got %v", barrelManager.ID, approved.ApprovedBy)
	}
	if len(approved.WorkLog) != 1 {
		t.Fatalf("expected 1 worklog entry, got %d", len(approved.WorkLog))
	}

	// 工单关闭，木桶恢复可用并回默认区
	var ticket entity.DamageTicket
	db.Where("id = ?", *job.TicketID).First(&ticket)
	if ticket.Status != entity.TicketStatusResolved {
		t.Fatalf("expected ticket resolved, got %s", ticket.Status)
	}

	db.Where("id = ?", barrel.ID).First(&reloaded)
	if reloaded.Condition != entity.ConditionOK {
		t.Fatalf("expected ok, got %s", reloaded.Condition)
	}
	if reloaded.Zone != entity.ZoneFactory {
		t.Fatalf("expected factory, got %s", reloaded.Zone)
	}
	if reloaded.FaultPercent != 0 {
		t.Fatalf("expected fault reset, got %v", reloaded.FaultPercent)
	}
}

// 驳回只把木桶退回损坏态：不会新开工单，也不触碰已有工单
func TestRepairRejectLeavesBarrelDamaged(t *testing.T) {
	db, svcs := setupBarrelTest(t)
	barrel := flagLumbedBarrel(t, db, svcs, "BRL-0001")
	ctx := context.Background()

	job, err := svcs.Repair.Open(ctx, barrelField, barrel.ID, &OpenRepairRequest{JobType: entity.JobTypeLumbRemoval})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := svcs.Repair.Complete(ctx, barrelField, job.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	rejected, err := svcs.Repair.Reject(ctx, barrelManager, job.ID, &RejectRepairRequest{Reason: "清理不彻底"})
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != entity.JobStatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}

	var reloaded entity.Barrel
	db.Where("id = ?", barrel.ID).First(&reloaded)
	if reloaded.Condition != entity.ConditionDamaged {
		t.Fatalf("expected damaged after reject, got %s", reloaded.Condition)
	}

	// 工单数量不变
	var count int64
	db.Model(&entity.DamageTicket{}).Where("barrel_id = ?", barrel.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 ticket after reject, got %d", count)
	}

	// 驳回后可重新开工
	if _, err := svcs.Repair.Open(ctx, barrelField, barrel.ID, &OpenRepairRequest{JobType: entity.JobTypeLumbRemoval}); err != nil {
		t.Fatalf("reopen after reject failed: %v", err)
	}
}

func TestRepairOpenPreconditions(t *testing.T) {
	db, svcs := setupBarrelTest(t)
	ctx := context.Background()

	// 完好桶不能开修复任务
	healthy := testutil.SeedBarrel(t, db, "BRL-0001", 200)
	_, err := svcs.Repair.Open(ctx, barrelField, healthy.ID, &OpenRepairRequest{JobType: entity.JobTypeRepair})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict opening job on healthy barrel, got %v", err)
	}

	damaged := flagLumbedBarrel(t, db, svcs, "BRL-0002")
	if _, err := svcs.Repair.Open(ctx, barrelField, damaged.ID, &OpenRepairRequest{JobType: entity.JobTypeLumbRemoval}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// 已有进行中任务时再开 → 冲突（此时桶也不在damaged态）
	_, err = svcs.Repair.Open(ctx, barrelField, damaged.ID, &OpenRepairRequest{JobType: entity.JobTypeLumbRemoval})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict opening second job, got %v", err)
	}

	// 未知任务类型
	_, err = svcs.Repair.Open(ctx, barrelField, damaged.ID, &OpenRepairRequest{JobType: "polish"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown job type, got %v", err)
	}
}

func TestRepairApprovalRequiresManager(t *testing.T) {
	db, svcs := setupBarrelTest(t)
	barrel := flagLumbedBarrel(t, db, svcs, "BRL-0001")
	ctx := context.Background()

	job, err := svcs.Repair.Open(ctx, barrelField, barrel.ID, &OpenRepairRequest{JobType: entity.JobTypeLumbRemoval})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := svcs.Repair.Complete(ctx, barrelField, job.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	_, err = svcs.Repair.Approve(ctx, barrelField, job.ID)
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	_, err = svcs.Repair.Reject(ctx, barrelLab, job.ID, &RejectRepairRequest{Reason: "x"})
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}
