package service

import (
	"context"
	"testing"

	"github.com/bitfantasy/hevea/internal/barrel/entity"
	"github.com/bitfantasy/hevea/internal/barrel/repository"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/bitfantasy/hevea/internal/shared/notify"
	"github.com/bitfantasy/hevea/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	barrelManager = auth.Actor{ID: "user-manager", Name: "经理", Roles: []string{auth.RoleManager}}
	barrelField   = auth.Actor{ID: "user-field", Name: "采胶员", Roles: []string{auth.RoleFieldStaff}}
	barrelLab     = auth.Actor{ID: "user-lab", Name: "化验员", Roles: []string{auth.RoleLabStaff}}
)

func setupBarrelTest(t *testing.T) (*gorm.DB, *Services) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	recorder := audit.NewRecorder(db)
	notifier := notify.NewDispatcher(nil, zap.NewNop())
	svcs := &Services{
		Barrel:    NewBarrelService(repos.Barrel, recorder, entity.ZoneFactory, zap.NewNop()),
		Condition: NewConditionService(repos.Barrel, repos.Ticket, recorder, notifier, 20, zap.NewNop()),
		Repair:    NewRepairService(repos.Barrel, repos.Ticket, repos.Repair, recorder, notifier, entity.ZoneFactory, zap.NewNop()),
	}
	return db, svcs
}

func f64(v float64) *float64 { return &v }

func TestFaultPercent(t *testing.T) {
	// 基准80kg，空桶100kg → (100-80)/80 = 25%
	if got := FaultPercent(80, 100); got != 25 {
		t.Fatalf("expected 25, got %v", got)
	}
	// 空桶比基准还轻：负值截为0
	if got := FaultPercent(80, 75); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	// 保留两位小数
	if got := FaultPercent(90, 100); got != 11.11 {
		t.Fatalf("expected 11.11, got %v", got)
	}
}

func TestWeightUpdateFlagsLumbedBarrel(t *testing.T) {
	db, svcs := setupBarrelTest(t)
	barrel := testutil.SeedBarrel(t, db, "BRL-0001", 200)
	ctx := context.Background()

	// 基准80/空桶100 → 故障率25%超过阈值20%
	updated, err := svcs.Condition.UpdateWeights(ctx, barrelLab, barrel.ID, &UpdateWeightsRequest{
		BaseWeightKg:  f64(80),
		EmptyWeightKg: f64(100),
	})
	if err != nil {
		t.Fatalf("UpdateWeights failed: %v", err)
	}
	if updated.FaultPercent != 25 {
		t.Fatalf("expected fault 25, got %v", updated.FaultPercent)
	}
	if updated.Condition != entity.ConditionDamaged {
		t.Fatalf("expected condition damaged, got %s", updated.Condition)
	}
	if updated.DamageType != entity.DamageTypeLumbed {
		t.Fatalf("expected damage_type lumbed, got %s", updated.DamageType)
	}

	// 自动开立结块清理工单
	var tickets []entity.DamageTicket
	db.Where("barrel_id = ?", barrel.ID).Find(&tickets)
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
	if tickets[0].AssignedTo != entity.AssignLumbRemoval {
		t.Fatalf("expected assigned_to lumb-removal, got %s", tickets[0].AssignedTo)
	}
	if tickets[0].FaultPercent == nil || *tickets[0].FaultPercent != 25 {
		t.Fatalf("expected ticket fault 25, got %v", tickets[0].FaultPercent)
	}
}

func TestWeightUpdateIdempotentTicket(t *testing.T) {
	db, svcs := setupBarrelTest(t)
	barrel := testutil.SeedBarrel(t, db, "BRL-0001", 200)
	ctx := context.Background()

	req := &UpdateWeightsRequest{BaseWeightKg: f64(80), EmptyWeightKg: f64(100)}
	if _, err := svcs.Condition.UpdateWeights(ctx, barrelLab, barrel.ID, req); err != nil {
		t.Fatalf("first UpdateWeights failed: %v", err)
	}
	// 再次称重仍超阈值：不重复开单
	if _, err := svcs.Condition.UpdateWeights(ctx, barrelLab, barrel.ID, &UpdateWeightsRequest{
		EmptyWeightKg: f64(102),
	}); err != nil {
		t.Fatalf("second UpdateWeights failed: %v", err)
	}

	var count int64
	db.Model(&entity.DamageTicket{}).Where("barrel_id = ?", barrel.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 ticket after repeated weighing, got %d", count)
	}
}

func TestWeightUpdateBelowThresholdKeepsOK(t *testing.T) {
	db, svcs := setupBarrelTest(t)
	barrel := testutil.SeedBarrel(t, db, "BRL-0001", 200)
	ctx := context.Background()

	// 故障率12.5%：低于阈值不动状态
	updated, err := svcs.Condition.UpdateWeights(ctx, barrelField, barrel.ID, &UpdateWeightsRequest{
		BaseWeightKg:  f64(80),
		EmptyWeightKg: f64(90),
	})
	if err != nil {
		t.Fatalf("UpdateWeights failed: %v", err)
	}
	if updated.FaultPercent != 12.5 {
		t.Fatalf("expected fault 12.5, got %v", updated.FaultPercent)
	}
	if updated.Condition != entity.ConditionOK {
		t.Fatalf("expected condition ok, got %s", updated.Condition)
	}

	var count int64
	db.Model(&entity.DamageTicket{}).Where("barrel_id = ?", barrel.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no tickets, got %d", count)
	}
}

func TestManualTicketAndScrapAssignment(t *testing.T) {
	db, svcs := setupBarrelTest(t)
	barrel := testutil.SeedBarrel(t, db, "BRL-0001", 200)
	ctx := context.Background()

	// 结块上报缺故障率 → 验证错误
	_, err := svcs.Condition.CreateTicket(ctx, barrelField, barrel.ID, &CreateTicketRequest{
		DamageType: entity.DamageTypeLumbed,
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for lumbed without fault, got %v", err)
	}

	ticket, err := svcs.Condition.CreateTicket(ctx, barrelField, barrel.ID, &CreateTicketRequest{
		DamageType: entity.DamageTypePhysical,
		Notes:      "桶壁开裂",
	})
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if ticket.Status != entity.TicketStatusOpen {
		t.Fatalf("expected open, got %s", ticket.Status)
	}

	// 同桶重复上报 → 冲突
	_, err = svcs.Condition.CreateTicket(ctx, barrelLab, barrel.ID, &CreateTicketRequest{
		DamageType: entity.DamageTypePhysical,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for duplicate ticket, got %v", err)
	}

	// 经理判定报废：桶报废移入报废区，工单关闭
	_, err = svcs.Condition.AssignTicket(ctx, barrelManager, ticket.ID, &AssignTicketRequest{
		AssignTo: entity.AssignScrap,
	})
	if err != nil {
		t.Fatalf("AssignTicket scrap failed: %v", err)
	}

	var reloaded entity.Barrel
	db.Where("id = ?", barrel.ID).First(&reloaded)
	if reloaded.Condition != entity.ConditionScrap {
		t.Fatalf("expected scrap, got %s", reloaded.Condition)
	}
	if reloaded.Zone != entity.ZoneScrapYard {
		t.Fatalf("expected scrap-yard, got %s", reloaded.Zone)
	}

	// 报废桶不再接受称重/装载/移动
	_, err = svcs.Condition.UpdateWeights(ctx, barrelLab, barrel.ID, &UpdateWeightsRequest{EmptyWeightKg: f64(90)})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict weighing scrapped barrel, got %v", err)
	}
	_, err = svcs.Barrel.SetVolume(ctx, barrelField, barrel.ID, &SetVolumeRequest{VolumeKg: 10})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict loading scrapped barrel, got %v", err)
	}
}

func TestSetVolumeBounds(t *testing.T) {
	db, svcs := setupBarrelTest(t)
	barrel := testutil.SeedBarrel(t, db, "BRL-0001", 200)
	ctx := context.Background()

	_, err := svcs.Barrel.SetVolume(ctx, barrelField, barrel.ID, &SetVolumeRequest{VolumeKg: 250})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error over capacity, got %v", err)
	}

	updated, err := svcs.Barrel.SetVolume(ctx, barrelField, barrel.ID, &SetVolumeRequest{VolumeKg: 200})
	if err != nil {
		t.Fatalf("SetVolume at capacity failed: %v", err)
	}
	if updated.VolumeKg != 200 {
		t.Fatalf("expected 200, got %v", updated.VolumeKg)
	}
}
