package entity

import "time"

// 采集单状态（主流程9级流水线 + 两个终止态）
const (
	StatusRequested         = "requested"
	StatusFieldAssigned     = "field_assigned"
	StatusCollected         = "collected"
	StatusDeliverAssigned   = "deliver_assigned"
	StatusDeliveredToLab    = "delivered_to_lab"
	StatusTested            = "tested"
	StatusAccountCalculated = "account_calculated"
	StatusVerified          = "verified"
	StatusInvoiced          = "invoiced"

	// 经理复核阶段的终止态
	StatusRejectedByManager    = "rejected_by_manager"
	StatusReturnedToAccountant = "returned_to_accountant"
)

// StageOrder 主流程的规范顺序，状态只能沿此顺序前进
var StageOrder = []string{
	StatusRequested,
	StatusFieldAssigned,
	StatusCollected,
	StatusDeliverAssigned,
	StatusDeliveredToLab,
	StatusTested,
	StatusAccountCalculated,
	StatusVerified,
	StatusInvoiced,
}

var stageIndex = func() map[string]int {
	m := make(map[string]int, len(StageOrder))
	for i, s := range StageOrder {
		m[s] = i
	}
	return m
}()

// StageOf 返回状态在流水线中的序号；终止态和未知状态返回-1
func StageOf(status string) int {
	if i, ok := stageIndex[status]; ok {
		return i
	}
	return -1
}

// IsTerminal 是否终止态（经理驳回/退回会计）
func IsTerminal(status string) bool {
	return status == StatusRejectedByManager || status == StatusReturnedToAccountant
}

// ActiveQuotaStatuses 占用供应商配额的状态集合
// 配额约束的是“未结算的在途采集量”：开票(invoiced)即结算完成释放配额，
// 两个终止态同样释放
var ActiveQuotaStatuses = []string{
	StatusRequested,
	StatusFieldAssigned,
	StatusCollected,
	StatusDeliverAssigned,
	StatusDeliveredToLab,
	StatusTested,
	StatusAccountCalculated,
	StatusVerified,
}

// CollectionRequest 胶乳采集单（每次供应商申报一条）
type CollectionRequest struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	ReqCode    string `json:"req_code" gorm:"size:32;uniqueIndex;not null"`
	SupplierID string `json:"supplier_id" gorm:"size:32;not null;index"`
	CreatedBy  string `json:"created_by" gorm:"size:32;not null"` // 可能是供应商本人，也可能是代录人员

	Status string `json:"status" gorm:"size:30;not null;default:requested;index"`

	// 申报量（配额校验依据，kg）
	QuantityKg float64 `json:"quantity_kg" gorm:"type:decimal(12,2);not null"`

	// 指派（仅经理可写，且只在对应阶段之前）
	FieldStaffID    *string `json:"field_staff_id" gorm:"size:32"`
	DeliveryStaffID *string `json:"delivery_staff_id" gorm:"size:32"`

	// 各阶段写入的测量字段（每项只写一次，写后不可变）
	TotalVolumeKg *float64 `json:"total_volume_kg" gorm:"type:decimal(12,2)"`
	DRCPercent    *float64 `json:"drc_percent" gorm:"type:decimal(5,2)"`
	MarketRate    *float64 `json:"market_rate" gorm:"type:decimal(12,2)"` // 货币/kg
	DryKg         *float64 `json:"dry_kg" gorm:"type:decimal(12,2)"`
	Amount        *float64 `json:"amount" gorm:"type:decimal(15,2)"`

	// 发票（verified时一次性生成，之后禁止重算）
	InvoiceNo string `json:"invoice_no" gorm:"size:32"`

	// 本单使用的木桶编号
	BarrelCodes StringArray `json:"barrel_codes" gorm:"type:jsonb"`

	FieldNotes string `json:"field_notes" gorm:"type:text"` // 现场采集备注

	// 各阶段时间戳（每个只设置一次，单调递增）
	RequestedAt  time.Time  `json:"requested_at"`
	CollectedAt  *time.Time `json:"collected_at"`
	DeliveredAt  *time.Time `json:"delivered_at"`
	TestedAt     *time.Time `json:"tested_at"`
	CalculatedAt *time.Time `json:"calculated_at"`
	VerifiedAt   *time.Time `json:"verified_at"`
	InvoicedAt   *time.Time `json:"invoiced_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes" gorm:"type:text"`

	// 关联
	Supplier *Supplier `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
}

func (CollectionRequest) TableName() string {
	return "lcs_collection_requests"
}
