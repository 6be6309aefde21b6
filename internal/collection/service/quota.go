package service

import (
	"context"
	"sync"

	"github.com/bitfantasy/hevea/internal/collection/repository"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
)

// QuotaGuard 供应商配额守卫
// 配额校验与采集单创建必须对同一供应商串行化：并发提交不得双双通过。
// 这里用按供应商分键的互斥锁把 求和→比较→创建 收敛为临界区，
// 求和在临界区内重新计算，保证不会基于过期读数放行
type QuotaGuard struct {
	supplierRepo *repository.SupplierRepository
	requestRepo  *repository.RequestRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewQuotaGuard(supplierRepo *repository.SupplierRepository, requestRepo *repository.RequestRepository) *QuotaGuard {
	return &QuotaGuard{
		supplierRepo: supplierRepo,
		requestRepo:  requestRepo,
		locks:        make(map[string]*sync.Mutex),
	}
}

func (g *QuotaGuard) supplierLock(supplierID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[supplierID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[supplierID] = l
	}
	return l
}

// Remaining 计算供应商剩余配额
// 配额未设置（0）时视为不限额，unlimited为true且remaining无意义
func (g *QuotaGuard) Remaining(ctx context.Context, supplierID string) (remaining float64, unlimited bool, err error) {
	supplier, err := g.supplierRepo.FindByID(ctx, supplierID)
	if err != nil {
		return 0, false, err
	}
	if supplier.AllowanceKg <= 0 {
		return 0, true, nil
	}
	used, err := g.requestRepo.SumActiveQuantity(ctx, supplierID)
	if err != nil {
		return 0, false, err
	}
	return supplier.AllowanceKg - used, false, nil
}

// Admit 校验申报量并在持锁状态下执行创建
// 超额时返回配额错误且不调用create；同一供应商的并发提交在此串行
func (g *QuotaGuard) Admit(ctx context.Context, supplierID string, quantityKg float64, create func(ctx context.Context) error) error {
	lock := g.supplierLock(supplierID)
	lock.Lock()
	defer lock.Unlock()

	remaining, unlimited, err := g.Remaining(ctx, supplierID)
	if err != nil {
		return err
	}
	if !unlimited && quantityKg > remaining {
		return apperr.QuotaExceeded("超出配额：申报 %.2fkg，剩余 %.2fkg", quantityKg, remaining)
	}

	return create(ctx)
}
