package service

import (
	"context"

	"github.com/bitfantasy/hevea/internal/collection/entity"
	"github.com/bitfantasy/hevea/internal/collection/repository"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/google/uuid"
)

// SupplierService 供应商主数据服务
type SupplierService struct {
	repo  *repository.SupplierRepository
	quota *QuotaGuard
}

func NewSupplierService(repo *repository.SupplierRepository, quota *QuotaGuard) *SupplierService {
	return &SupplierService{repo: repo, quota: quota}
}

// CreateSupplierRequest 创建供应商请求
type CreateSupplierRequest struct {
	Name        string  `json:"name" binding:"required"`
	Phone       string  `json:"phone"`
	Region      string  `json:"region"`
	AllowanceKg float64 `json:"allowance_kg"`
	UserID      *string `json:"user_id"`
	Notes       string  `json:"notes"`
}

// Create 创建供应商
func (s *SupplierService) Create(ctx context.Context, actor auth.Actor, req *CreateSupplierRequest) (*entity.Supplier, error) {
	if !actor.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("只有经理可以创建供应商")
	}
	if req.AllowanceKg < 0 {
		return nil, apperr.Validation("配额不能为负数")
	}

	code, err := s.repo.GenerateCode(ctx)
	if err != nil {
		return nil, err
	}

	supplier := &entity.Supplier{
		ID:          uuid.New().String()[:32],
		Code:        code,
		Name:        req.Name,
		Phone:       req.Phone,
		Region:      req.Region,
		AllowanceKg: req.AllowanceKg,
		UserID:      req.UserID,
		Status:      "active",
		CreatedBy:   actor.ID,
		Notes:       req.Notes,
	}

	if err := s.repo.Create(ctx, supplier); err != nil {
		return nil, err
	}
	return supplier, nil
}

// List 查询供应商列表
func (s *SupplierService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Supplier, int64, error) {
	return s.repo.FindAll(ctx, page, pageSize, filters)
}

// Get 查询供应商详情
func (s *SupplierService) Get(ctx context.Context, id string) (*entity.Supplier, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateAllowanceRequest 调整配额请求
type UpdateAllowanceRequest struct {
	AllowanceKg float64 `json:"allowance_kg"`
}

// UpdateAllowance 经理调整供应商配额；已发生的核算不会重算
func (s *SupplierService) UpdateAllowance(ctx context.Context, actor auth.Actor, id string, req *UpdateAllowanceRequest) (*entity.Supplier, error) {
	if !actor.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("只有经理可以调整配额")
	}
	if req.AllowanceKg < 0 {
		return nil, apperr.Validation("配额不能为负数")
	}

	supplier, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	supplier.AllowanceKg = req.AllowanceKg
	if err := s.repo.Update(ctx, supplier); err != nil {
		return nil, err
	}
	return supplier, nil
}

// QuotaStatus 配额占用情况
type QuotaStatus struct {
	SupplierID  string  `json:"supplier_id"`
	AllowanceKg float64 `json:"allowance_kg"`
	UsedKg      float64 `json:"used_kg"`
	RemainingKg float64 `json:"remaining_kg"`
	Unlimited   bool    `json:"unlimited"`
}

// Quota 查询供应商剩余配额
func (s *SupplierService) Quota(ctx context.Context, id string) (*QuotaStatus, error) {
	supplier, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	remaining, unlimited, err := s.quota.Remaining(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &QuotaStatus{
		SupplierID:  id,
		AllowanceKg: supplier.AllowanceKg,
		Unlimited:   unlimited,
	}
	if !unlimited {
		status.RemainingKg = remaining
		status.UsedKg = supplier.AllowanceKg - remaining
	}
	return status, nil
}
