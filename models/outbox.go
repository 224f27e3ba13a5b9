package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/utils"
	"gorm.io/gorm"
)

// StockLedgerRecord implements the transactional outbox for ledger events:
// the record is written inside the caller's DB transaction but NOT
// published. Publishing is performed asynchronously by the outbox
// dispatcher after commit, so a rolled-back mutation never leaks an event.
type StockLedgerRecord struct {
	ID               int        `gorm:"primary_key" json:"id"`
	BranchId         int        `gorm:"index;not null" json:"branch_id"`
	EventTime        time.Time  `gorm:"not null" json:"event_time"`
	ReferenceId      int        `gorm:"index;not null" json:"reference_id"`
	ReferenceType    string     `gorm:"size:10;index;not null" json:"reference_type"`
	Action           string     `gorm:"size:20;not null" json:"action"`
	Payload          []byte     `gorm:"type:json" json:"payload"`
	IsProcessed      bool       `gorm:"not null;default:false;index" json:"is_processed"`
	PublishStatus    string     `gorm:"size:20;not null;default:PENDING;index" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index" json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:64" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishToStockLedger stages a ledger event in the caller's transaction.
func PublishToStockLedger(ctx context.Context, tx *gorm.DB, branchId int, eventTime time.Time, refId int, refType StockReferenceType, obj interface{}, action LedgerAction) error {

	payload, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	record := StockLedgerRecord{
		BranchId:      branchId,
		EventTime:     eventTime,
		ReferenceId:   refId,
		ReferenceType: string(refType),
		Action:        string(action),
		Payload:       payload,
		IsProcessed:   false,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ConvertToStockLedgerMessage maps an outbox row to the wire payload.
func ConvertToStockLedgerMessage(record StockLedgerRecord) config.StockLedgerMessage {
	return config.StockLedgerMessage{
		ID:            record.ID,
		BranchId:      record.BranchId,
		EventTime:     record.EventTime,
		ReferenceId:   record.ReferenceId,
		ReferenceType: record.ReferenceType,
		Action:        record.Action,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
