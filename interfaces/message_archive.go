package interfaces

import "context"

// MessageArchive keeps the raw source of ingested messages.
type MessageArchive interface {
	Store(ctx context.Context, ticketID, externalID string, raw []byte) (string, error)
}
