package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/hevea/internal/barrel/entity"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"gorm.io/gorm"
)

// BarrelRepository 木桶仓库
type BarrelRepository struct {
	db *gorm.DB
}

func NewBarrelRepository(db *gorm.DB) *BarrelRepository {
	return &BarrelRepository{db: db}
}

// FindAll 查询木桶列表
func (r *BarrelRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Barrel, int64, error) {
	var items []entity.Barrel
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Barrel{})

	if condition := filters["condition"]; condition != "" {
		query = query.Where("condition = ?", condition)
	}
	if zone := filters["zone"]; zone != "" {
		query = query.Where("zone = ?", zone)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("code LIKE ?", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找木桶
func (r *BarrelRepository) FindByID(ctx context.Context, id string) (*entity.Barrel, error) {
	var barrel entity.Barrel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&barrel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("木桶不存在")
		}
		return nil, err
	}
	return &barrel, nil
}

// FindByCode 根据编码查找木桶
func (r *BarrelRepository) FindByCode(ctx context.Context, code string) (*entity.Barrel, error) {
	var barrel entity.Barrel
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&barrel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("木桶不存在")
		}
		return nil, err
	}
	return &barrel, nil
}

// Create 创建木桶
func (r *BarrelRepository) Create(ctx context.Context, barrel *entity.Barrel) error {
	return r.db.WithContext(ctx).Create(barrel).Error
}

// Update 更新木桶
func (r *BarrelRepository) Update(ctx context.Context, barrel *entity.Barrel) error {
	return r.db.WithContext(ctx).Save(barrel).Error
}

// CountByCondition 按状态统计
func (r *BarrelRepository) CountByCondition(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Condition string
		Count     int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&entity.Barrel{}).
		Select("condition, COUNT(*) as count").
		Group("condition").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.Condition] = r.Count
	}
	return result, nil
}

// GenerateCode 生成木桶编码 BRL-{4位}
func (r *BarrelRepository) GenerateCode(ctx context.Context) (string, error) {
	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.Barrel{}).
		Select("COALESCE(MAX(code), '')").
		Where("code LIKE ?", "BRL-%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "BRL-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("BRL-%04d", seq), nil
}
