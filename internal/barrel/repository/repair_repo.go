package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/hevea/internal/barrel/entity"
	"github.com/bitfantasy/hevea/internal/shared/apperr"
	"gorm.io/gorm"
)

// RepairRepository 修复任务仓库
type RepairRepository struct {
	db *gorm.DB
}

func NewRepairRepository(db *gorm.DB) *RepairRepository {
	return &RepairRepository{db: db}
}

// FindAll 查询修复任务列表
func (r *RepairRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.RepairJob, int64, error) {
	var items []entity.RepairJob
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.RepairJob{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if barrelID := filters["barrel_id"]; barrelID != "" {
		query = query.Where("barrel_id = ?", barrelID)
	}
	if jobType := filters["job_type"]; jobType != "" {
		query = query.Where("job_type = ?", jobType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Barrel").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找修复任务
func (r *RepairRepository) FindByID(ctx context.Context, id string) (*entity.RepairJob, error) {
	var job entity.RepairJob
	err := r.db.WithContext(ctx).Preload("Barrel").Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("修复任务不存在")
		}
		return nil, err
	}
	return &job, nil
}

// FindActiveByBarrel 查找木桶当前未结束的修复任务，没有则返回nil
func (r *RepairRepository) FindActiveByBarrel(ctx context.Context, barrelID string) (*entity.RepairJob, error) {
	var job entity.RepairJob
	err := r.db.WithContext(ctx).
		Where("barrel_id = ? AND status IN ?", barrelID,
			[]string{entity.JobStatusInProgress, entity.JobStatusAwaitingApproval}).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// Create 创建修复任务
func (r *RepairRepository) Create(ctx context.Context, job *entity.RepairJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update 更新修复任务
func (r *RepairRepository) Update(ctx context.Context, job *entity.RepairJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GenerateCode 生成任务编码 RJ-{年份}-{4位}
func (r *RepairRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Year()
	prefix := fmt.Sprintf("RJ-%d-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.RepairJob{}).
		Select("COALESCE(MAX(job_code), '')").
		Where("job_code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, prefix+"%04d", &seq)
	}
	seq++
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}
