package interfaces

import (
	"context"

	"github.com/customeros/ticketinbox/dto"
)

type TicketInboxSyncService interface {
	StartTicketInboxSync() dto.SyncStateSnapshot
	TriggerTicketInboxSync()
	StopTicketInboxSync() dto.StopResult
	GetTicketInboxSyncState() dto.SyncStateSnapshot
	Shutdown(ctx context.Context) error
}
