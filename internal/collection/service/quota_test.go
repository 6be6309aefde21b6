package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bitfantasy/hevea/internal/collection/entity"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/bitfantasy/hevea/internal/testutil"
)

func TestQuotaAdmitWithinAllowance(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 500)
	ctx := context.Background()

	// 400kg申报通过
	if _, err := svc.Create(ctx, supplierActor, &CreateRequestRequest{
		SupplierID: supplier.ID,
		QuantityKg: 400,
	}); err != nil {
		t.Fatalf("Create within allowance failed: %v", err)
	}

	// 再申报200kg超出剩余100kg → 配额错误
	_, err := svc.Create(ctx, supplierActor, &CreateRequestRequest{
		SupplierID: supplier.ID,
		QuantityKg: 200,
	})
	if !apperr.Is(err, apperr.KindQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	// 刚好用满剩余配额可以通过
	if _, err := svc.Create(ctx, supplierActor, &CreateRequestRequest{
		SupplierID: supplier.ID,
		QuantityKg: 100,
	}); err != nil {
		t.Fatalf("Create at exact remaining failed: %v", err)
	}
}

func TestQuotaReleasedByTerminalStates(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 500)
	ctx := context.Background()

	record, err := svc.Create(ctx, supplierActor, &CreateRequestRequest{
		SupplierID: supplier.ID,
		QuantityKg: 400,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// 在途占用，再来400不行
	_, err = svc.Create(ctx, supplierActor, &CreateRequestRequest{
		SupplierID: supplier.ID,
		QuantityKg: 400,
	})
	if !apperr.Is(err, apperr.KindQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	// 驳回后释放配额
	db.Model(&entity.CollectionRequest{}).
		Where("id = ?", record.ID).
		Update("status", entity.StatusRejectedByManager)

	if _, err := svc.Create(ctx, supplierActor, &CreateRequestRequest{
		SupplierID: supplier.ID,
		QuantityKg: 400,
	}); err != nil {
		t.Fatalf("Create after quota release failed: %v", err)
	}
}

func TestQuotaUnlimitedWhenAllowanceZero(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, supplierActor, &CreateRequestRequest{
			SupplierID: supplier.ID,
			QuantityKg: 10000,
		}); err != nil {
			t.Fatalf("Create %d with unlimited allowance failed: %v", i, err)
		}
	}
}

// 并发申报不得超卖配额：准入判定与创建在同一供应商临界区内
func TestQuotaConcurrentAdmits(t *testing.T) {
	db, svc := setupWorkflowTest(t)
	supplier := testutil.SeedSupplier(t, db, "SUP-0001", "胶园一号", 500)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, supplierActor, &CreateRequestRequest{
				SupplierID: supplier.ID,
				QuantityKg: 100,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var admitted, rejected int
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case apperr.Is(err, apperr.KindQuotaExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if admitted != 5 || rejected != 5 {
		t.Fatalf("expected 5 admitted / 5 rejected, got %d / %d", admitted, rejected)
	}

	var sum float64
	db.Model(&entity.CollectionRequest{}).
		Where("supplier_id = ?", supplier.ID).
		Select("COALESCE(SUM(quantity_kg), 0)").
		Scan(&sum)
	if sum != 500 {
		t.Fatalf("expected total admitted 500kg, got %v", sum)
	}
}
