package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/utils"
	"github.com/shopspring/decimal"
)

// BatchAdjustment is a manual out-of-band correction to a batch's remaining
// quantity. Append-only: adjustments are never edited or deleted.
//
// ReviseOriginal disambiguates the two kinds of adjustment:
//   - false: a physical change (damage, recount of loose stock) — only the
//     remaining quantity moves, and it must stay within [0, original].
//   - true: a data-entry correction — the original quantity was wrong, so
//     both original and remaining move by delta. Visible in the audit trail.
type BatchAdjustment struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BatchId        int             `gorm:"index;not null" json:"batch_id"`
	Delta          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"delta"`
	Reason         string          `gorm:"size:255;not null" json:"reason"`
	ReviseOriginal *bool           `gorm:"not null;default:false" json:"revise_original"`
	UserId         int             `gorm:"index;not null" json:"user_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewBatchAdjustment struct {
	BatchId        int             `json:"batch_id" validate:"required,gt=0"`
	Delta          decimal.Decimal `json:"delta"`
	Reason         string          `json:"reason" validate:"required"`
	ReviseOriginal bool            `json:"revise_original"`
}

// AdjustBatch applies a signed delta to a batch's remaining quantity and
// re-derives its status. A positive delta can resurrect a depleted batch.
func AdjustBatch(ctx context.Context, input *NewBatchAdjustment) (*BatchAdjustment, error) {

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Delta.IsZero() {
		return nil, fmt.Errorf("%w: adjustment delta cannot be zero", ErrInvalidInput)
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	batch, err := lockBatch(tx, input.BatchId)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("batch %d: %w", input.BatchId, err)
	}
	if batch.Status == BatchStatusTransferred || batch.Status == BatchStatusCancelled {
		tx.Rollback()
		return nil, ErrBatchNotAdjustable
	}
	before := *batch

	newRemaining := batch.RemainingQuantity.Add(input.Delta)
	newOriginal := batch.OriginalQuantity
	if input.ReviseOriginal {
		newOriginal = newOriginal.Add(input.Delta)
	}
	if newRemaining.IsNegative() || !newOriginal.IsPositive() {
		tx.Rollback()
		return nil, fmt.Errorf("batch %d: %w", batch.ID, ErrInvariantViolation)
	}
	if newRemaining.GreaterThan(newOriginal) {
		tx.Rollback()
		return nil, fmt.Errorf("batch %d: %w (remaining %s would exceed original %s; set revise_original to correct a data-entry error)",
			batch.ID, ErrInvariantViolation, newRemaining, newOriginal)
	}

	batch.RemainingQuantity = newRemaining
	batch.OriginalQuantity = newOriginal
	batch.deriveStatus()
	if err := tx.Model(batch).Updates(map[string]interface{}{
		"RemainingQuantity": batch.RemainingQuantity,
		"OriginalQuantity":  batch.OriginalQuantity,
		"Status":            batch.Status,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	adjustment := BatchAdjustment{
		BatchId:        batch.ID,
		Delta:          input.Delta,
		Reason:         input.Reason,
		ReviseOriginal: &input.ReviseOriginal,
		UserId:         userId,
	}
	if err := tx.Create(&adjustment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := createHistory(tx, string(LedgerActionAdjust), adjustment.ID, string(StockReferenceTypeAdjustment), &before, batch, input.Reason); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishToStockLedger(ctx, tx, batch.BranchId, time.Now().UTC(), adjustment.ID, StockReferenceTypeAdjustment, &adjustment, LedgerActionAdjust); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &adjustment, nil
}

// ListAdjustments returns the permanent adjustment trail of a batch,
// oldest first.
func ListAdjustments(ctx context.Context, batchId int) ([]*BatchAdjustment, error) {

	if err := utils.ValidateResourceId[Batch](ctx, batchId); err != nil {
		return nil, fmt.Errorf("batch not found: %w", err)
	}

	db := config.GetDB()
	var adjustments []*BatchAdjustment
	if err := db.WithContext(ctx).
		Where("batch_id = ?", batchId).
		Order("id ASC").
		Find(&adjustments).Error; err != nil {
		return nil, err
	}
	return adjustments, nil
}
