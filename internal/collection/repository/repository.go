package repository

import "gorm.io/gorm"

// Repositories 采集域仓库集合
type Repositories struct {
	Supplier *SupplierRepository
	Request  *RequestRepository
}

// NewRepositories 创建采集域仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Supplier: NewSupplierRepository(db),
		Request:  NewRequestRepository(db),
	}
}
