package entity

import "time"

// 损坏工单状态
const (
	TicketStatusOpen     = "open"
	TicketStatusAssigned = "assigned"
	TicketStatusResolved = "resolved"
	TicketStatusScrapped = "scrapped"
)

// 处置去向
const (
	AssignLumbRemoval = "lumb-removal"
	AssignRepair      = "repair"
	AssignScrap       = "scrap"
	AssignInspection  = "inspection"
	AssignNone        = "none"
)

// DamageTicket 木桶损坏工单
// 由称重检测自动开立，或由采胶员/化验员手工上报；
// 同一木桶同时最多一张未关闭工单
type DamageTicket struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	TicketCode string `json:"ticket_code" gorm:"size:32;uniqueIndex;not null"`
	BarrelID   string `json:"barrel_id" gorm:"size:32;not null;index"`
	ReporterID string `json:"reporter_id" gorm:"size:32"`

	DamageType   string   `json:"damage_type" gorm:"size:20;not null"`
	FaultPercent *float64 `json:"fault_percent" gorm:"type:decimal(5,2)"` // 结块类损坏必填

	Status     string `json:"status" gorm:"size:20;default:open;index"`
	AssignedTo string `json:"assigned_to" gorm:"size:20;default:none"`

	ResolvedAt *time.Time `json:"resolved_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes" gorm:"type:text"`

	// 关联
	Barrel *Barrel `json:"barrel,omitempty" gorm:"foreignKey:BarrelID"`
}

func (DamageTicket) TableName() string {
	return "barrel_damage_tickets"
}

// IsOpen 工单是否仍在驱动木桶状态
func (t *DamageTicket) IsOpen() bool {
	return t.Status == TicketStatusOpen || t.Status == TicketStatusAssigned
}
