package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 修复任务状态
const (
	JobStatusInProgress       = "in-progress"
	JobStatusAwaitingApproval = "awaiting-approval"
	JobStatusCompleted        = "completed"
	JobStatusRejected         = "rejected"
)

// 修复任务类型（与处置去向一致）
const (
	JobTypeLumbRemoval = "lumb-removal"
	JobTypeRepair      = "repair"
)

// WorkLogEntry 施工记录条目
type WorkLogEntry struct {
	Step      string    `json:"step"`
	Note      string    `json:"note"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Time      time.Time `json:"time"`
}

// WorkLog 追加式施工日志（jsonb存储）
type WorkLog []WorkLogEntry

func (w WorkLog) Value() (driver.Value, error) {
	if w == nil {
		return nil, nil
	}
	return json.Marshal(w)
}

func (w *WorkLog) Scan(value interface{}) error {
	if value == nil {
		*w = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, w)
	case string:
		return json.Unmarshal([]byte(v), w)
	default:
		return fmt.Errorf("failed to scan WorkLog: %v", value)
	}
}

// RepairJob 木桶修复/处置任务
// in-progress → awaiting-approval → completed | rejected；
// 只有显式审批才能到completed，驳回让木桶退回损坏态
type RepairJob struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	JobCode  string `json:"job_code" gorm:"size:32;uniqueIndex;not null"`
	BarrelID string `json:"barrel_id" gorm:"size:32;not null;index"`
	TicketID *string `json:"ticket_id" gorm:"size:32"`

	JobType  string  `json:"job_type" gorm:"size:20;not null"`
	OpenedBy string  `json:"opened_by" gorm:"size:32;not null"`
	WorkLog  WorkLog `json:"work_log" gorm:"type:jsonb"`

	Status     string     `json:"status" gorm:"size:20;default:in-progress;index"`
	ApprovedBy *string    `json:"approved_by" gorm:"size:32"`
	ApprovedAt *time.Time `json:"approved_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes" gorm:"type:text"`

	// 关联
	Barrel *Barrel `json:"barrel,omitempty" gorm:"foreignKey:BarrelID"`
}

func (RepairJob) TableName() string {
	return "barrel_repair_jobs"
}
