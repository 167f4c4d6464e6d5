package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/utils"
)

// TicketInboxWatermarkID is the key of the single watermark row.
const TicketInboxWatermarkID = "ticket-inbox"

// InboxSyncWatermark marks the receive time of the last durably ingested message
type InboxSyncWatermark struct {
	ID                 string     `gorm:"column:id;type:varchar(50);primaryKey"`
	LastSuccessfulSync *time.Time `gorm:"column:last_successful_sync;type:timestamp"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (InboxSyncWatermark) TableName() string {
	return "ticket_inbox_sync_watermarks"
}

// SyncNotificationLog is an append-only record of sync attempts and terminal events
type SyncNotificationLog struct {
	ID          string               `gorm:"column:id;type:varchar(50);primaryKey"`
	PassID      string               `gorm:"column:pass_id;type:varchar(50);index"`
	EventType   enum.SyncEventType   `gorm:"column:event_type;type:varchar(50);index;not null"`
	Status      enum.SyncEventStatus `gorm:"column:status;type:varchar(20);not null"`
	ContextJSON JSONMap              `gorm:"column:context_json;type:jsonb"`
	CreatedAt   time.Time            `gorm:"column:created_at;type:timestamp;index"`
}

func (SyncNotificationLog) TableName() string {
	return "sync_notification_logs"
}

func (l *SyncNotificationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = utils.GenerateNanoIDWithPrefix("slog", 16)
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.Now()
	}
	return nil
}
