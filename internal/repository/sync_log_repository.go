package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/models"
	"github.com/customeros/ticketinbox/internal/tracing"
)

const DetailPassID = "passId"

type SyncLogRepository interface {
	interfaces.NotificationLogger
	ListRecent(ctx context.Context, limit int) ([]*models.SyncNotificationLog, error)
	ListByPass(ctx context.Context, passID string) ([]*models.SyncNotificationLog, error)
}

type syncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) LogSyncEvent(ctx context.Context, eventType enum.SyncEventType, status enum.SyncEventStatus, details map[string]interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncLogRepository.LogSyncEvent")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("event_type", eventType.String())
	span.SetTag("status", status.String())

	entry := &models.SyncNotificationLog{
		EventType:   eventType,
		Status:      status,
		ContextJSON: models.JSONMap(details),
	}
	if passID, ok := details[DetailPassID].(string); ok {
		entry.PassID = passID
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save sync log entry: %w", err)
	}
	return nil
}

func (r *syncLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.SyncNotificationLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncLogRepository.ListRecent")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entries []*models.SyncNotificationLog
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return entries, nil
}

func (r *syncLogRepository) ListByPass(ctx context.Context, passID string) ([]*models.SyncNotificationLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncLogRepository.ListByPass")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entries []*models.SyncNotificationLog
	if err := r.db.WithContext(ctx).Where("pass_id = ?", passID).Order("created_at ASC").Find(&entries).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return entries, nil
}
