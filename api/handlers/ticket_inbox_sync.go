package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/repository"
	"github.com/customeros/ticketinbox/internal/tracing"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

// StartTicketInboxSync launches a pass in the background and returns the state
// right after. Starting while a pass runs is not an error.
func StartTicketInboxSync(syncService interfaces.TicketInboxSyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, _ := opentracing.StartSpanFromContext(c.Request.Context(), "Handlers.StartTicketInboxSync")
		defer span.Finish()

		state := syncService.StartTicketInboxSync()
		tracing.TagPass(span, state.PassID)
		c.JSON(http.StatusAccepted, state)
	}
}

// StopTicketInboxSync requests an abort. Cleanup may still be running when it answers.
func StopTicketInboxSync(syncService interfaces.TicketInboxSyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, _ := opentracing.StartSpanFromContext(c.Request.Context(), "Handlers.StopTicketInboxSync")
		defer span.Finish()

		result := syncService.StopTicketInboxSync()
		span.LogKV("wasRunning", result.WasRunning)
		c.JSON(http.StatusOK, result)
	}
}

func GetTicketInboxSyncState(syncService interfaces.TicketInboxSyncService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, syncService.GetTicketInboxSyncState())
	}
}

// ListSyncEvents returns the latest sync log entries, or those of one pass with ?passId=.
func ListSyncEvents(syncLogs repository.SyncLogRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "Handlers.ListSyncEvents")
		defer span.Finish()

		if passID := c.Query("passId"); passID != "" {
			tracing.TagPass(span, passID)
			entries, err := syncLogs.ListByPass(ctx, passID)
			if err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sync events"})
				return
			}
			c.JSON(http.StatusOK, entries)
			return
		}

		limit := defaultEventsLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > maxEventsLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
				return
			}
			limit = parsed
		}

		entries, err := syncLogs.ListRecent(ctx, limit)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sync events"})
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}
