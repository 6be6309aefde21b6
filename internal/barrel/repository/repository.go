package repository

import "gorm.io/gorm"

// Repositories 木桶领域仓储集合
type Repositories struct {
	Barrel *BarrelRepository
	Ticket *TicketRepository
	Repair *RepairRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Barrel: NewBarrelRepository(db),
		Ticket: NewTicketRepository(db),
		Repair: NewRepairRepository(db),
	}
}
