package ticketsync

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketinbox/dto"
	ticketinbox_errors "github.com/customeros/ticketinbox/errors"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/tracing"
)

type IngestResult struct {
	Outcome  enum.IngestOutcome
	TicketID string
}

// MessageIngestor maps one message to either a new ticket or a reply on an
// existing ticket. The message ExternalID is the idempotency key: a message that
// was already stored, as a ticket or as a reply, is reported as a duplicate.
type MessageIngestor struct {
	store interfaces.TicketStore
}

func NewMessageIngestor(store interfaces.TicketStore) *MessageIngestor {
	return &MessageIngestor{store: store}
}

func (i *MessageIngestor) Ingest(ctx context.Context, msg *dto.IngestedMessage) (IngestResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageIngestor.Ingest")
	defer span.Finish()

	if msg == nil || strings.TrimSpace(msg.ExternalID) == "" {
		err := errors.New("message has no external id")
		tracing.TraceErr(span, err)
		return IngestResult{}, err
	}
	span.SetTag("external_id", msg.ExternalID)

	exists, err := i.store.ExternalIDExists(ctx, msg.ExternalID)
	if err != nil {
		tracing.TraceErr(span, err)
		return IngestResult{}, errors.Wrap(err, "failed to check external id")
	}
	if exists {
		return IngestResult{Outcome: enum.IngestOutcomeDuplicate}, nil
	}

	fields := interfaces.TicketFields{
		ExternalID:    msg.ExternalID,
		Subject:       msg.Subject,
		Body:          msg.Body,
		SenderAddress: msg.SenderAddress,
		References:    msg.References,
		ReceivedAt:    msg.ReceivedAt,

		Classification:       msg.Classification,
		ClassificationReason: msg.ClassificationReason,
	}

	ticketID, err := i.resolveTicket(ctx, msg)
	if err != nil {
		tracing.TraceErr(span, err)
		return IngestResult{}, err
	}

	if ticketID != "" {
		err = i.store.AppendReply(ctx, ticketID, fields)
		switch {
		case err == nil:
			tracing.TagEntity(span, ticketID)
			return IngestResult{Outcome: enum.IngestOutcomeReplyAppended, TicketID: ticketID}, nil
		case !errors.Is(err, ticketinbox_errors.ErrTicketNotFound):
			tracing.TraceErr(span, err)
			return IngestResult{}, errors.Wrap(err, "failed to append reply")
		}
		// ticket vanished after it was resolved, open a new one instead
	}

	ticketID, err = i.store.CreateTicket(ctx, fields)
	if err != nil {
		tracing.TraceErr(span, err)
		return IngestResult{}, errors.Wrap(err, "failed to create ticket")
	}
	tracing.TagEntity(span, ticketID)
	return IngestResult{Outcome: enum.IngestOutcomeTicketCreated, TicketID: ticketID}, nil
}

// resolveTicket finds the ticket a message replies to, first by the subject
// token, then by the ids in its reply headers. Empty means a new ticket.
func (i *MessageIngestor) resolveTicket(ctx context.Context, msg *dto.IngestedMessage) (string, error) {
	if msg.InReplyToTicketRef != nil && *msg.InReplyToTicketRef != "" {
		ticketID, err := i.store.FindTicketIDByRef(ctx, *msg.InReplyToTicketRef)
		if err != nil {
			return "", errors.Wrap(err, "failed to resolve ticket ref")
		}
		if ticketID != "" {
			return ticketID, nil
		}
	}

	if len(msg.References) == 0 {
		return "", nil
	}
	ticketID, err := i.store.FindTicketIDByExternalIDs(ctx, msg.References)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve referenced messages")
	}
	return ticketID, nil
}
