package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/models"
	"github.com/customeros/ticketinbox/internal/tracing"
	"github.com/customeros/ticketinbox/internal/utils"
)

type TicketRepository interface {
	interfaces.TicketStore
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	ListReplies(ctx context.Context, ticketID string) ([]*models.TicketReply, error)
}

type ticketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

// CreateTicket opens a ticket for the message. Re-delivering the same external id
// returns the ticket created the first time.
func (r *ticketRepository) CreateTicket(ctx context.Context, fields interfaces.TicketFields) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.CreateTicket")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("external_id", fields.ExternalID)

	if fields.ExternalID == "" {
		tracing.TraceErr(span, ErrInvalidInput)
		return "", ErrInvalidInput
	}

	var ticketID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := &models.Ticket{}
		err := tx.Where("external_id = ?", fields.ExternalID).First(existing).Error
		if err == nil {
			span.SetTag("duplicate", true)
			ticketID = existing.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		ticket := &models.Ticket{
			ExternalID:    fields.ExternalID,
			Subject:       utils.NormalizeEmailSubject(fields.Subject),
			Body:          fields.Body,
			SenderAddress: fields.SenderAddress,
			References:    fields.References,
			ReceivedAt:    fields.ReceivedAt.UTC(),

			Classification:       fields.Classification,
			ClassificationReason: fields.ClassificationReason,
		}
		if err := tx.Create(ticket).Error; err != nil {
			return err
		}
		ticketID = ticket.ID
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	tracing.TagEntity(span, ticketID)
	return ticketID, nil
}

// AppendReply adds the message to an existing ticket, ignoring an already stored external id.
func (r *ticketRepository) AppendReply(ctx context.Context, ticketID string, fields interfaces.TicketFields) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.AppendReply")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, ticketID)
	span.SetTag("external_id", fields.ExternalID)

	if ticketID == "" || fields.ExternalID == "" {
		tracing.TraceErr(span, ErrInvalidInput)
		return ErrInvalidInput
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Ticket{}).Where("id = ?", ticketID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrTicketNotFound
		}

		if err := tx.Model(&models.TicketReply{}).Where("external_id = ?", fields.ExternalID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			span.SetTag("duplicate", true)
			return nil
		}

		reply := &models.TicketReply{
			TicketID:      ticketID,
			ExternalID:    fields.ExternalID,
			Subject:       fields.Subject,
			Body:          fields.Body,
			SenderAddress: fields.SenderAddress,
			References:    fields.References,
			ReceivedAt:    fields.ReceivedAt.UTC(),

			Classification:       fields.Classification,
			ClassificationReason: fields.ClassificationReason,
		}
		if err := tx.Create(reply).Error; err != nil {
			return err
		}

		return tx.Model(&models.Ticket{}).Where("id = ?", ticketID).Update("updated_at", reply.CreatedAt).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// FindTicketIDByRef resolves a subject token reference. Returns "" when no ticket matches.
func (r *ticketRepository) FindTicketIDByRef(ctx context.Context, ref string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.FindTicketIDByRef")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("ref", ref)

	var ticket models.Ticket
	err := r.db.WithContext(ctx).Select("id").Where("ref = ?", ref).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		tracing.TraceErr(span, err)
		return "", err
	}
	return ticket.ID, nil
}

// FindTicketIDByExternalIDs returns the ticket that opened with, or received a reply
// with, one of the given message ids.
func (r *ticketRepository) FindTicketIDByExternalIDs(ctx context.Context, externalIDs []string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.FindTicketIDByExternalIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if len(externalIDs) == 0 {
		return "", nil
	}

	var ticket models.Ticket
	err := r.db.WithContext(ctx).Select("id").Where("external_id IN ?", externalIDs).Order("received_at ASC").First(&ticket).Error
	if err == nil {
		return ticket.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return "", err
	}

	var reply models.TicketReply
	err = r.db.WithContext(ctx).Select("ticket_id").Where("external_id IN ?", externalIDs).Order("received_at ASC").First(&reply).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		tracing.TraceErr(span, err)
		return "", err
	}
	return reply.TicketID, nil
}

func (r *ticketRepository) ExternalIDExists(ctx context.Context, externalID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.ExternalIDExists")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("external_id", externalID)

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Ticket{}).Where("external_id = ?", externalID).Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	if err := r.db.WithContext(ctx).Model(&models.TicketReply{}).Where("external_id = ?", externalID).Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	return count > 0, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var ticket models.Ticket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListReplies(ctx context.Context, ticketID string) ([]*models.TicketReply, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ticketRepository.ListReplies")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var replies []*models.TicketReply
	if err := r.db.WithContext(ctx).Where("ticket_id = ?", ticketID).Order("received_at ASC").Find(&replies).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return replies, nil
}
