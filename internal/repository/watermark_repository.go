package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/models"
	"github.com/customeros/ticketinbox/internal/tracing"
	"github.com/customeros/ticketinbox/internal/utils"
)

type watermarkRepository struct {
	db *gorm.DB
}

func NewWatermarkRepository(db *gorm.DB) interfaces.WatermarkStore {
	return &watermarkRepository{db: db}
}

// GetLastSuccessfulSync returns nil until the first pass commits a watermark
func (r *watermarkRepository) GetLastSuccessfulSync(ctx context.Context) (*time.Time, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "watermarkRepository.GetLastSuccessfulSync")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var watermark models.InboxSyncWatermark
	err := r.db.WithContext(ctx).Where("id = ?", models.TicketInboxWatermarkID).First(&watermark).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetTag("found", false)
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	if watermark.LastSuccessfulSync == nil {
		return nil, nil
	}
	t := watermark.LastSuccessfulSync.UTC()
	return &t, nil
}

// SetLastSuccessfulSync only moves the watermark forward; the guard lives in the
// UPDATE so two racing commits cannot move it backward.
func (r *watermarkRepository) SetLastSuccessfulSync(ctx context.Context, t time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "watermarkRepository.SetLastSuccessfulSync")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("watermark", t.UTC().Format(time.RFC3339Nano))

	t = t.UTC()
	var advanced bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.InboxSyncWatermark{
			ID:        models.TicketInboxWatermarkID,
			UpdatedAt: utils.Now(),
		}).Error
		if err != nil {
			return err
		}

		result := tx.Model(&models.InboxSyncWatermark{}).
			Where("id = ? AND (last_successful_sync IS NULL OR last_successful_sync < ?)", models.TicketInboxWatermarkID, t).
			Updates(map[string]interface{}{
				"last_successful_sync": t,
				"updated_at":           utils.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		advanced = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}

	span.SetTag("advanced", advanced)
	return advanced, nil
}
