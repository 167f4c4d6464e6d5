package dto

import "github.com/customeros/ticketinbox/internal/enum"

type SyncEvent struct {
	EventType enum.SyncEventType     `json:"eventType"`
	Status    enum.SyncEventStatus   `json:"status"`
	PassID    string                 `json:"passId,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp string                 `json:"timestamp"`
}
