package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxDispatcher publishes committed stock-ledger events to Pub/Sub.
// Rows are claimed with SKIP LOCKED so multiple dispatcher replicas never
// publish the same row twice; poison rows go terminal after MaxAttempts.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *OutboxDispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil {
		return
	}

	var claimed []models.StockLedgerRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but the lock went stale (dispatcher crashed mid-batch)
		q := tx.
			Where("is_processed = 0").
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Poison rows go terminal rather than looping forever.
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.StockLedgerRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].PublishAttempts = claimed[i].PublishAttempts + 1
			claimed[i].LastPublishError = nil
			if err := tx.Model(&models.StockLedgerRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":   claimed[i].PublishStatus,
				"locked_at":        claimed[i].LockedAt,
				"locked_by":        claimed[i].LockedBy,
				"publish_attempts": gorm.Expr("publish_attempts + 1"),
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		d.logError("dispatchOnce", "failed to claim outbox rows", err)
		return
	}

	for i := range claimed {
		if claimed[i].PublishStatus != models.OutboxPublishStatusProcessing {
			continue
		}
		d.publishOne(ctx, &claimed[i])
	}
}

func (d *OutboxDispatcher) publishOne(ctx context.Context, record *models.StockLedgerRecord) {
	message := models.ConvertToStockLedgerMessage(*record)
	data, err := json.Marshal(&message)
	if err != nil {
		d.markFailed(ctx, record, err)
		return
	}

	attrs := map[string]string{
		"referenceType": record.ReferenceType,
		"action":        record.Action,
		"correlationId": record.CorrelationId,
	}
	if err := config.PublishStockLedgerMessage(ctx, data, attrs); err != nil {
		d.markFailed(ctx, record, err)
		return
	}

	if err := d.DB.WithContext(ctx).Model(&models.StockLedgerRecord{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
		"is_processed":    true,
		"publish_status":  models.OutboxPublishStatusPublished,
		"next_attempt_at": nil,
		"locked_at":       nil,
		"locked_by":       nil,
	}).Error; err != nil {
		d.logError("publishOne", "published but failed to mark processed", err)
	}
}

func (d *OutboxDispatcher) markFailed(ctx context.Context, record *models.StockLedgerRecord, publishErr error) {
	msg := publishErr.Error()
	// linear-ish backoff capped at 5 minutes
	backoff := d.InitialBackoff * time.Duration(record.PublishAttempts)
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	next := time.Now().UTC().Add(backoff)

	if err := d.DB.WithContext(ctx).Model(&models.StockLedgerRecord{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusFailed,
		"last_publish_error": &msg,
		"next_attempt_at":    &next,
		"locked_at":          nil,
		"locked_by":          nil,
	}).Error; err != nil {
		d.logError("markFailed", "failed to record publish failure", err)
	}
	d.logError("publishOne", fmt.Sprintf("publish failed for outbox row %d", record.ID), publishErr)
}

func (d *OutboxDispatcher) logError(funcName, context string, err error) {
	logger := d.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	config.LogError(logger, "workflow/outboxDispatcher.go", funcName, context, nil, err)
}
