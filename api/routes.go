package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/ticketinbox/api/handlers"
	"github.com/customeros/ticketinbox/api/middleware"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/repository"
	"github.com/customeros/ticketinbox/internal/tracing"
)

const APIKeyHeader = "X-TICKET-INBOX-API-KEY"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, syncService interfaces.TicketInboxSyncService, repos *repository.Repositories, apikey string) {
	if syncService == nil {
		panic("Sync service cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware())
	{
		ticketInboxSync := api.Group("/ticket-inbox-sync")
		{
			ticketInboxSync.GET("", handlers.GetTicketInboxSyncState(syncService))
			ticketInboxSync.POST("/start", handlers.StartTicketInboxSync(syncService))
			ticketInboxSync.POST("/stop", handlers.StopTicketInboxSync(syncService))
			ticketInboxSync.GET("/events", handlers.ListSyncEvents(repos.SyncLogRepository))
		}

		tickets := api.Group("/tickets")
		{
			tickets.GET("/:id", handlers.GetTicket(repos.TicketRepository))
		}
	}
}
