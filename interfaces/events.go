package interfaces

import (
	"context"

	"github.com/customeros/ticketinbox/dto"
)

type SyncCommandListener interface {
	Handle(ctx context.Context, command dto.SyncCommandMessage) error
}
