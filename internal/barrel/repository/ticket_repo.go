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

// TicketRepository 损坏工单仓库
type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// FindAll 查询工单列表
func (r *TicketRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.DamageTicket, int64, error) {
	var items []entity.DamageTicket
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.DamageTicket{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if barrelID := filters["barrel_id"]; barrelID != "" {
		query = query.Where("barrel_id = ?", barrelID)
	}
	if damageType := filters["damage_type"]; damageType != "" {
		query = query.Where("damage_type = ?", damageType)
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

// FindByID 根据ID查找工单
func (r *TicketRepository) FindByID(ctx context.Context, id string) (*entity.DamageTicket, error) {
	var ticket entity.DamageTicket
	err := r.db.WithContext(ctx).Preload("Barrel").Where("id = ?", id).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("损坏工单不存在")
		}
		return nil, err
	}
	return &ticket, nil
}

// FindOpenByBarrel 查找木桶当前未关闭的工单，没有则返回nil
func (r *TicketRepository) FindOpenByBarrel(ctx context.Context, barrelID string) (*entity.DamageTicket, error) {
	var ticket entity.DamageTicket
	err := r.db.WithContext(ctx).
		Where("barrel_id = ? AND status IN ?", barrelID, []string{entity.TicketStatusOpen, entity.TicketStatusAssigned}).
		Order("created_at DESC").
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

// Create 创建工单
func (r *TicketRepository) Create(ctx context.Context, ticket *entity.DamageTicket) error {
	return r.db.WithContext(ctx).Create(ticket).Error
}

// Update 更新工单
func (r *TicketRepository) Update(ctx context.Context, ticket *entity.DamageTicket) error {
	return r.db.WithContext(ctx).Save(ticket).Error
}

// GenerateCode 生成工单编码 DT-{年份}-{4位}
func (r *TicketRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Year()
	prefix := fmt.Sprintf("DT-%d-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.DamageTicket{}).
		Select("COALESCE(MAX(ticket_code), '')").
		Where("ticket_code LIKE ?", prefix+"%").
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
