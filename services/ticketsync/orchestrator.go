package ticketsync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/ticketinbox/dto"
	ticketinbox_errors "github.com/customeros/ticketinbox/errors"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/logger"
	"github.com/customeros/ticketinbox/internal/tracing"
)

// passProgress tracks what a pass durably wrote. lastIngested only ever holds
// the ReceivedAt of a message the ticket store confirmed.
type passProgress struct {
	fetched      int
	created      int
	replies      int
	duplicates   int
	archived     int
	lastIngested *time.Time
}

func (p *passProgress) details() map[string]interface{} {
	details := map[string]interface{}{
		"fetched":    p.fetched,
		"created":    p.created,
		"replies":    p.replies,
		"duplicates": p.duplicates,
		"archived":   p.archived,
	}
	if p.lastIngested != nil {
		details["lastIngestedAt"] = p.lastIngested.UTC().Format(time.RFC3339Nano)
	}
	return details
}

// SyncOrchestrator runs one pass: connect, resume from the watermark, fetch and
// ingest message by message, then commit the watermark and release the state.
type SyncOrchestrator struct {
	state       *SyncState
	controller  *CancellationController
	dialer      interfaces.MailClientDialer
	gate        *WatermarkGate
	ingestor    *MessageIngestor
	archive     interfaces.MessageArchive
	notifier    *syncNotifier
	log         logger.Logger
	maxMessages int
}

// Run executes the pass. ctx is the pass cancellation token: it bounds dialing and
// fetching only. Ticket store writes and the watermark commit run detached from it
// so a message is never cut off mid-write.
func (o *SyncOrchestrator) Run(ctx context.Context, pass Pass) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncOrchestrator.Run")
	defer span.Finish()
	tracing.TagComponentSync(span)
	tracing.TagPass(span, pass.ID)

	writeCtx := context.WithoutCancel(ctx)
	log := o.log.With(zap.String("passId", pass.ID))
	progress := &passProgress{}
	var client interfaces.MailClient

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in sync pass: %v", r)
			tracing.TraceErr(span, err)
			o.fail(writeCtx, pass, log, client, progress, err)
		}
	}()

	o.notifier.notify(writeCtx, pass, enum.SyncEventStarted, enum.SyncStatusSent, nil)
	log.Info("sync pass started")

	client, err := o.dialer.Dial(ctx)
	if err != nil {
		if o.state.ShouldAbort(pass) {
			o.abort(writeCtx, pass, log, nil, progress)
			return
		}
		err = ticketinbox_errors.NewConnectError(err)
		tracing.TraceErr(span, err)
		log.Errorf("sync pass could not connect: %v", err)
		o.notifier.notify(writeCtx, pass, enum.SyncEventConnectError, enum.SyncStatusError, map[string]interface{}{
			"error": err.Error(),
		})
		o.release(pass)
		return
	}

	if !o.state.AttachClient(pass, client) {
		o.abort(writeCtx, pass, log, client, progress)
		return
	}

	if !o.state.SetPhase(pass, enum.SyncPhaseResuming) || o.state.ShouldAbort(pass) {
		o.abort(writeCtx, pass, log, client, progress)
		return
	}
	resumeFrom, err := o.gate.ResumePoint(writeCtx)
	if err != nil {
		o.fail(writeCtx, pass, log, client, progress, ticketinbox_errors.NewFetchError(err))
		return
	}

	o.state.SetPhase(pass, enum.SyncPhaseFetching)
	if err := client.Open(ctx, resumeFrom); err != nil {
		if o.state.ShouldAbort(pass) {
			o.abort(writeCtx, pass, log, client, progress)
			return
		}
		o.fail(writeCtx, pass, log, client, progress, ticketinbox_errors.NewFetchError(err))
		return
	}

	for o.maxMessages <= 0 || progress.fetched < o.maxMessages {
		if o.state.ShouldAbort(pass) {
			o.abort(writeCtx, pass, log, client, progress)
			return
		}

		o.state.SetPhase(pass, enum.SyncPhaseFetching)
		msg, err := client.FetchNext(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if o.state.ShouldAbort(pass) {
				o.abort(writeCtx, pass, log, client, progress)
				return
			}
			o.fail(writeCtx, pass, log, client, progress, ticketinbox_errors.NewFetchError(err))
			return
		}
		progress.fetched++

		o.state.SetPhase(pass, enum.SyncPhaseIngesting)
		result, err := o.ingestor.Ingest(writeCtx, msg)
		if err != nil {
			o.fail(writeCtx, pass, log, client, progress, ticketinbox_errors.NewIngestError(msg.ExternalID, err))
			return
		}

		switch result.Outcome {
		case enum.IngestOutcomeTicketCreated:
			progress.created++
		case enum.IngestOutcomeReplyAppended:
			progress.replies++
		case enum.IngestOutcomeDuplicate:
			progress.duplicates++
		}
		receivedAt := msg.ReceivedAt
		progress.lastIngested = &receivedAt
		log.Debugf("message %s ingested as %s (ticket %s)", msg.ExternalID, result.Outcome, result.TicketID)

		if o.archiveMessage(writeCtx, log, msg, result) {
			progress.archived++
		}
	}

	o.state.SetPhase(pass, enum.SyncPhaseCommitting)
	if err := o.commit(writeCtx, progress); err != nil {
		o.fail(writeCtx, pass, log, client, progress, err)
		return
	}
	o.closeClient(log, client)

	if o.release(pass) {
		log.Infof("sync pass completed: %d fetched, %d tickets, %d replies, %d duplicates",
			progress.fetched, progress.created, progress.replies, progress.duplicates)
		o.notifier.notify(writeCtx, pass, enum.SyncEventCompleted, enum.SyncStatusSent, progress.details())
	}
}

// abort winds a pass down at a message boundary, keeping the progress made so far.
func (o *SyncOrchestrator) abort(ctx context.Context, pass Pass, log logger.Logger, client interfaces.MailClient, progress *passProgress) {
	o.state.SetPhase(pass, enum.SyncPhaseAborting)

	if err := o.commit(ctx, progress); err != nil {
		log.Errorf("failed to commit watermark on abort: %v", err)
	}
	o.closeClient(log, client)

	if o.release(pass) {
		log.Info("sync pass aborted")
		o.notifier.notify(ctx, pass, enum.SyncEventAborted, enum.SyncStatusSent, progress.details())
		return
	}
	log.Warn("sync pass finished after its state was forcibly reset")
}

// fail ends a pass on error. Messages ingested before the failure stay covered
// by the watermark, the failing one is retried by the next pass.
func (o *SyncOrchestrator) fail(ctx context.Context, pass Pass, log logger.Logger, client interfaces.MailClient, progress *passProgress, err error) {
	if o.state.ShouldAbort(pass) {
		o.abort(ctx, pass, log, client, progress)
		return
	}

	log.Errorf("sync pass failed: %v", err)
	details := progress.details()
	details["error"] = err.Error()
	if kind, ok := ticketinbox_errors.KindOf(err); ok {
		details["kind"] = string(kind)
	}
	var syncErr *ticketinbox_errors.SyncError
	if errors.As(err, &syncErr) && syncErr.ExternalID != "" {
		details["externalId"] = syncErr.ExternalID
	}

	if commitErr := o.commit(ctx, progress); commitErr != nil {
		log.Errorf("failed to commit watermark after error: %v", commitErr)
	}
	o.closeClient(log, client)

	if o.release(pass) {
		o.notifier.notify(ctx, pass, enum.SyncEventError, enum.SyncStatusError, details)
	}
}

// archiveMessage is best effort. A failed upload is logged and the message stays ingested.
func (o *SyncOrchestrator) archiveMessage(ctx context.Context, log logger.Logger, msg *dto.IngestedMessage, result IngestResult) bool {
	if o.archive == nil || len(msg.Raw) == 0 || result.Outcome == enum.IngestOutcomeDuplicate {
		return false
	}
	key, err := o.archive.Store(ctx, result.TicketID, msg.ExternalID, msg.Raw)
	if err != nil {
		log.Warnf("failed to archive message %s: %v", msg.ExternalID, err)
		return false
	}
	log.Debugf("message %s archived at %s", msg.ExternalID, key)
	return true
}

func (o *SyncOrchestrator) commit(ctx context.Context, progress *passProgress) error {
	if progress.lastIngested == nil {
		return nil
	}
	if _, err := o.gate.Commit(ctx, *progress.lastIngested); err != nil {
		return err
	}
	return nil
}

func (o *SyncOrchestrator) closeClient(log logger.Logger, client interfaces.MailClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Warnf("%v", ticketinbox_errors.NewCloseError(err))
	}
}

// release hands the state back and cancels the watchdog. It reports false when
// the watchdog already reset the state for this pass.
func (o *SyncOrchestrator) release(pass Pass) bool {
	released := o.state.ResetPass(pass)
	o.controller.Disarm(pass)
	return released
}
