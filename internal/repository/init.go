package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/models"
)

type Repositories struct {
	TicketRepository    TicketRepository
	WatermarkRepository interfaces.WatermarkStore
	SyncLogRepository   SyncLogRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		TicketRepository:    NewTicketRepository(db),
		WatermarkRepository: NewWatermarkRepository(db),
		SyncLogRepository:   NewSyncLogRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Ticket{},
		&models.TicketReply{},
		&models.InboxSyncWatermark{},
		&models.SyncNotificationLog{},
	)
}
