package interfaces

import (
	"context"
	"time"

	"github.com/customeros/ticketinbox/dto"
)

// MailClient is one connected mailbox session, owned by a single sync pass.
type MailClient interface {
	// Open lists the messages received strictly after since (all messages when nil),
	// oldest first.
	Open(ctx context.Context, since *time.Time) error
	// FetchNext returns the next message, or io.EOF once the listing is exhausted.
	FetchNext(ctx context.Context) (*dto.IngestedMessage, error)
	// Close logs out. It may be called more than once and from another goroutine.
	Close() error
}

type MailClientDialer interface {
	Dial(ctx context.Context) (MailClient, error)
}
