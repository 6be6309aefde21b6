package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/hevea/internal/collection/entity"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"gorm.io/gorm"
)

// RequestRepository 采集单仓库
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// FindAll 查询采集单列表
func (r *RequestRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.CollectionRequest, int64, error) {
	var items []entity.CollectionRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.CollectionRequest{})

	if supplierID := filters["supplier_id"]; supplierID != "" {
		query = query.Where("supplier_id = ?", supplierID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if fieldStaffID := filters["field_staff_id"]; fieldStaffID != "" {
		query = query.Where("field_staff_id = ?", fieldStaffID)
	}
	if deliveryStaffID := filters["delivery_staff_id"]; deliveryStaffID != "" {
		query = query.Where("delivery_staff_id = ?", deliveryStaffID)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("req_code LIKE ?", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Supplier").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找采集单
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*entity.CollectionRequest, error) {
	var req entity.CollectionRequest
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("采集单不存在")
		}
		return nil, err
	}
	return &req, nil
}

// Create 创建采集单
func (r *RequestRepository) Create(ctx context.Context, req *entity.CollectionRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// SumActiveQuantity 汇总某供应商占用配额的申报量（kg）
func (r *RequestRepository) SumActiveQuantity(ctx context.Context, supplierID string) (float64, error) {
	var sum float64
	err := r.db.WithContext(ctx).
		Model(&entity.CollectionRequest{}).
		Select("COALESCE(SUM(quantity_kg), 0)").
		Where("supplier_id = ? AND status IN ?", supplierID, entity.ActiveQuotaStatuses).
		Scan(&sum).Error
	return sum, err
}

// TransitionStatus 以(id, 期望前置状态)为键的条件更新（乐观并发）
// 存储中的状态已不等于期望值时不做任何修改，返回冲突错误
func (r *RequestRepository) TransitionStatus(ctx context.Context, id, fromStatus string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&entity.CollectionRequest{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 区分记录不存在与状态不匹配
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&entity.CollectionRequest{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperr.NotFound("采集单不存在")
		}
		return apperr.Conflict("采集单状态已变化，请刷新后重试")
	}
	return nil
}

// CountByStatus 按状态统计采集单数量（仪表盘用）
func (r *RequestRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&entity.CollectionRequest{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, rr := range rows {
		result[rr.Status] = rr.Count
	}
	return result, nil
}

// FindInvoicedBySupplier 查询供应商某时段内已开票采集单（结算报表用）
func (r *RequestRepository) FindInvoicedBySupplier(ctx context.Context, supplierID string, from, to time.Time) ([]entity.CollectionRequest, error) {
	var items []entity.CollectionRequest
	err := r.db.WithContext(ctx).
		Where("supplier_id = ? AND status = ? AND invoiced_at >= ? AND invoiced_at < ?",
			supplierID, entity.StatusInvoiced, from, to).
		Order("invoiced_at ASC").
		Find(&items).Error
	return items, err
}

// GenerateCode 生成采集单编码 REQ-{year}-{4位}
func (r *RequestRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("REQ-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.CollectionRequest{}).
		Select("COALESCE(MAX(req_code), '')").
		Where("req_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "REQ-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("REQ-%s-%04d", year, seq), nil
}
