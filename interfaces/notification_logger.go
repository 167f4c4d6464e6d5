package interfaces

import (
	"context"

	"github.com/customeros/ticketinbox/dto"
	"github.com/customeros/ticketinbox/internal/enum"
)

type NotificationLogger interface {
	LogSyncEvent(ctx context.Context, eventType enum.SyncEventType, status enum.SyncEventStatus, details map[string]interface{}) error
}

type SyncEventPublisher interface {
	PublishSyncEvent(ctx context.Context, event dto.SyncEvent) error
	Close() error
}
