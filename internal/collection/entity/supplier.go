package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringArray 字符串数组字段类型（jsonb存储）
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("failed to scan StringArray: %v", value)
	}
}

// Supplier 胶乳供应商
type Supplier struct {
	ID     string `json:"id" gorm:"primaryKey;size:32"`
	Code   string `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name   string `json:"name" gorm:"size:200;not null"`
	Phone  string `json:"phone" gorm:"size:30"`
	Region string `json:"region" gorm:"size:100"`

	// 配额：同期未结算采集量上限（kg）；0表示不限额
	AllowanceKg float64 `json:"allowance_kg" gorm:"type:decimal(12,2);default:0"`

	// 结算账户
	UserID *string `json:"user_id" gorm:"size:32"` // 关联登录账号

	Status    string    `json:"status" gorm:"size:20;default:active"` // active/inactive
	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes" gorm:"type:text"`
}

func (Supplier) TableName() string {
	return "lcs_suppliers"
}
