package listeners

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketinbox/dto"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/logger"
	"github.com/customeros/ticketinbox/internal/tracing"
)

// SyncCommandListener applies start and stop commands received from the bus to
// the sync control surface.
type SyncCommandListener struct {
	logger  logger.Logger
	syncSvc interfaces.TicketInboxSyncService
}

func NewSyncCommandListener(logger logger.Logger, syncSvc interfaces.TicketInboxSyncService) interfaces.SyncCommandListener {
	return &SyncCommandListener{
		logger:  logger,
		syncSvc: syncSvc,
	}
}

func (l *SyncCommandListener) Handle(ctx context.Context, command dto.SyncCommandMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncCommandListener.Handle")
	defer span.Finish()
	tracing.TagComponentListener(span)
	tracing.LogObjectAsJson(span, "command", command)

	switch command.Command {
	case enum.SyncCommandStart:
		state := l.syncSvc.StartTicketInboxSync()
		tracing.TagPass(span, state.PassID)
		l.logger.Infof("Sync start requested by %s, pass %s in progress: %v",
			requester(command), state.PassID, state.InProgress)
	case enum.SyncCommandStop:
		result := l.syncSvc.StopTicketInboxSync()
		l.logger.Infof("Sync stop requested by %s, was running: %v", requester(command), result.WasRunning)
	default:
		err := errors.Errorf("unknown sync command %q", command.Command)
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func requester(command dto.SyncCommandMessage) string {
	if command.RequestedBy == "" {
		return "unknown"
	}
	return command.RequestedBy
}
