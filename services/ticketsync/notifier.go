package ticketsync

import (
	"context"
	"time"

	"github.com/customeros/ticketinbox/dto"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/logger"
	"github.com/customeros/ticketinbox/internal/repository"
	"github.com/customeros/ticketinbox/internal/utils"
)

// syncNotifier records sync events in the notification log and, when configured,
// publishes them. Failing to record an event never fails the pass.
type syncNotifier struct {
	notifications interfaces.NotificationLogger
	publisher     interfaces.SyncEventPublisher
	log           logger.Logger
}

func (n *syncNotifier) notify(ctx context.Context, pass Pass, eventType enum.SyncEventType, status enum.SyncEventStatus, details map[string]interface{}) {
	payload := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		payload[k] = v
	}
	if pass.ID != "" {
		payload[repository.DetailPassID] = pass.ID
	}

	if n.notifications != nil {
		if err := n.notifications.LogSyncEvent(ctx, eventType, status, payload); err != nil {
			n.log.Errorf("failed to log sync event %s for pass %s: %v", eventType, pass.ID, err)
		}
	}

	if n.publisher != nil {
		event := dto.SyncEvent{
			EventType: eventType,
			Status:    status,
			PassID:    pass.ID,
			Context:   payload,
			Timestamp: utils.Now().Format(time.RFC3339Nano),
		}
		if err := n.publisher.PublishSyncEvent(ctx, event); err != nil {
			n.log.Warnf("failed to publish sync event %s for pass %s: %v", eventType, pass.ID, err)
		}
	}
}
