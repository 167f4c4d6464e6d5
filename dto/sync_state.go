package dto

import (
	"time"

	"github.com/customeros/ticketinbox/internal/enum"
)

type SyncStateSnapshot struct {
	InProgress     bool           `json:"inProgress"`
	AbortRequested bool           `json:"abortRequested"`
	StartedAt      *time.Time     `json:"startedAt"`
	Phase          enum.SyncPhase `json:"phase"`
	PassID         string         `json:"passId,omitempty"`
}

type StopResult struct {
	WasRunning     bool `json:"wasRunning"`
	AbortRequested bool `json:"abortRequested"`
}
