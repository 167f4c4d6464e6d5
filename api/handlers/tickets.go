package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/ticketinbox/internal/models"
	"github.com/customeros/ticketinbox/internal/repository"
	"github.com/customeros/ticketinbox/internal/tracing"
)

type ticketReplyResponse struct {
	ID             string    `json:"id"`
	ExternalID     string    `json:"externalId"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	SenderAddress  string    `json:"senderAddress"`
	ReceivedAt     time.Time `json:"receivedAt"`
	Classification string    `json:"classification,omitempty"`
}

type ticketResponse struct {
	ID             string                `json:"id"`
	Ref            string                `json:"ref"`
	ExternalID     string                `json:"externalId"`
	Subject        string                `json:"subject"`
	Body           string                `json:"body"`
	SenderAddress  string                `json:"senderAddress"`
	ReceivedAt     time.Time             `json:"receivedAt"`
	Classification string                `json:"classification,omitempty"`
	Replies        []ticketReplyResponse `json:"replies"`
}

func GetTicket(tickets repository.TicketRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "Handlers.GetTicket")
		defer span.Finish()

		ticketID := c.Param("id")
		tracing.TagEntity(span, ticketID)

		ticket, err := tickets.GetByID(ctx, ticketID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load ticket"})
			return
		}
		if ticket == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
			return
		}

		replies, err := tickets.ListReplies(ctx, ticketID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load ticket replies"})
			return
		}

		c.JSON(http.StatusOK, toTicketResponse(ticket, replies))
	}
}

func toTicketResponse(ticket *models.Ticket, replies []*models.TicketReply) ticketResponse {
	response := ticketResponse{
		ID:             ticket.ID,
		Ref:            ticket.Ref,
		ExternalID:     ticket.ExternalID,
		Subject:        ticket.Subject,
		Body:           ticket.Body,
		SenderAddress:  ticket.SenderAddress,
		ReceivedAt:     ticket.ReceivedAt,
		Classification: ticket.Classification.String(),
		Replies:        make([]ticketReplyResponse, 0, len(replies)),
	}
	for _, reply := range replies {
		response.Replies = append(response.Replies, ticketReplyResponse{
			ID:             reply.ID,
			ExternalID:     reply.ExternalID,
			Subject:        reply.Subject,
			Body:           reply.Body,
			SenderAddress:  reply.SenderAddress,
			ReceivedAt:     reply.ReceivedAt,
			Classification: reply.Classification.String(),
		})
	}
	return response
}
