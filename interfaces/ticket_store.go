package interfaces

import (
	"context"
	"time"

	"github.com/customeros/ticketinbox/internal/enum"
)

type TicketFields struct {
	ExternalID    string
	Subject       string
	Body          string
	SenderAddress string
	References    []string
	ReceivedAt    time.Time

	Classification       enum.MessageClassification
	ClassificationReason string
}

type TicketStore interface {
	CreateTicket(ctx context.Context, fields TicketFields) (string, error)
	AppendReply(ctx context.Context, ticketID string, fields TicketFields) error
	FindTicketIDByRef(ctx context.Context, ref string) (string, error)
	FindTicketIDByExternalIDs(ctx context.Context, externalIDs []string) (string, error)
	ExternalIDExists(ctx context.Context, externalID string) (bool, error)
}
