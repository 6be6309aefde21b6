package entity

import "time"

// 木桶状态
const (
	ConditionOK          = "ok"
	ConditionDamaged     = "damaged"
	ConditionLumbRemoval = "lumb-removal" // 结块清理中
	ConditionRepair      = "repair"       // 修复中
	ConditionScrap       = "scrap"        // 报废（逻辑销毁，不可复用）
)

// 损坏类型
const (
	DamageTypeLumbed   = "lumbed"
	DamageTypePhysical = "physical"
)

// 木桶所在区域
const (
	ZoneFactory   = "factory"
	ZoneLumbBay   = "lumb-bay"
	ZoneRepairBay = "repair-bay"
	ZoneScrapYard = "scrap-yard"
	ZoneCustomer  = "customer"
	ZoneWarehouse = "warehouse"
)

// Barrel 可复用的胶乳桶
// 生命周期独立于采集单；报废只是状态流转，记录永不删除
type Barrel struct {
	ID   string `json:"id" gorm:"primaryKey;size:32"`
	Code string `json:"code" gorm:"size:32;uniqueIndex;not null"`

	CapacityKg float64 `json:"capacity_kg" gorm:"type:decimal(10,2);not null"`
	VolumeKg   float64 `json:"volume_kg" gorm:"type:decimal(10,2);default:0"` // 0 ≤ volume ≤ capacity

	Condition  string `json:"condition" gorm:"size:20;default:ok;index"`
	DamageType string `json:"damage_type" gorm:"size:20"`

	// 称重检测：每次称重全量重算故障率，不做累计
	BaseWeightKg  *float64 `json:"base_weight_kg" gorm:"type:decimal(10,2)"`
	EmptyWeightKg *float64 `json:"empty_weight_kg" gorm:"type:decimal(10,2)"`
	FaultPercent  float64  `json:"fault_percent" gorm:"type:decimal(5,2);default:0"`

	Zone string `json:"zone" gorm:"size:30;default:factory;index"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes" gorm:"type:text"`
}

func (Barrel) TableName() string {
	return "barrels"
}

// IsDisposed 是否已报废；报废桶不得重新指派或接收胶乳
func (b *Barrel) IsDisposed() bool {
	return b.Condition == ConditionScrap
}
