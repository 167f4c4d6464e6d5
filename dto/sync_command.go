package dto

import "github.com/customeros/ticketinbox/internal/enum"

// SyncCommandMessage is a start or stop request consumed from the commands queue.
type SyncCommandMessage struct {
	ID          string           `json:"id"`
	Command     enum.SyncCommand `json:"command"`
	RequestedBy string           `json:"requestedBy,omitempty"`
	UberTraceId string           `json:"uberTraceId,omitempty"`
}
