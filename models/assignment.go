package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/utils"
	"github.com/shopspring/decimal"
)

// Assignment is an append-only ledger entry tying a deduction to the sale
// or production item that consumed it. Immutable once created.
type Assignment struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BatchId          int             `gorm:"index;not null" json:"batch_id"`
	ReferenceId      int             `gorm:"index;not null" json:"reference_id"`
	QuantityDeducted decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_deducted"`
	CreatedBy        int             `json:"created_by"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// NewAssignmentEntry is one line of an approved allocation handed to
// CommitAllocation. Usually produced by ProposeAllocation, optionally
// operator-edited; either way it is only a hint until re-validated here.
type NewAssignmentEntry struct {
	BatchId          int             `json:"batch_id" validate:"required,gt=0"`
	QuantityDeducted decimal.Decimal `json:"quantity_deducted"`
}

// CommitAllocation atomically deducts every entry from its batch and
// records the assignments. All-or-nothing: the first entry that fails
// re-validation rolls back everything already staged.
//
// The proposal the entries came from was generated without locks, so each
// batch is re-read under SELECT ... FOR UPDATE and its remaining quantity
// re-checked. A concurrent writer that drained the batch since the proposal
// surfaces as StaleBatchError, which is recoverable: re-propose and retry.
func CommitAllocation(ctx context.Context, branchId int, entries []NewAssignmentEntry, referenceId int) ([]*Assignment, error) {

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: allocation has no entries", ErrInvalidInput)
	}
	if referenceId <= 0 {
		return nil, fmt.Errorf("%w: reference id is required", ErrInvalidInput)
	}
	for _, entry := range entries {
		if err := utils.ValidateStruct(&entry); err != nil {
			return nil, err
		}
		if !entry.QuantityDeducted.IsPositive() {
			return nil, fmt.Errorf("%w: quantity for batch %d must be positive", ErrInvalidInput, entry.BatchId)
		}
	}
	if err := validateBranchExists(ctx, branchId); err != nil {
		return nil, err
	}

	// Serialize heavyweight stock writers per branch. Row locks below remain
	// the correctness mechanism.
	release, err := utils.StockLock(ctx, branchId, "assignment.go", "CommitAllocation")
	if err != nil {
		return nil, err
	}
	defer release()

	userId, _ := utils.GetUserIdFromContext(ctx)
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	assignments := make([]*Assignment, 0, len(entries))
	for _, entry := range entries {
		batch, err := lockBatch(tx, entry.BatchId)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("batch %d: %w", entry.BatchId, err)
		}
		if batch.BranchId != branchId {
			tx.Rollback()
			return nil, fmt.Errorf("batch %d: %w", batch.ID, ErrBranchMismatch)
		}
		if batch.Status != BatchStatusInStock {
			tx.Rollback()
			return nil, &StaleBatchError{BatchId: batch.ID, Requested: entry.QuantityDeducted, Remaining: batch.RemainingQuantity}
		}
		// mandatory commit-time re-validation
		if entry.QuantityDeducted.GreaterThan(batch.RemainingQuantity) {
			tx.Rollback()
			return nil, &StaleBatchError{BatchId: batch.ID, Requested: entry.QuantityDeducted, Remaining: batch.RemainingQuantity}
		}

		batch.RemainingQuantity = batch.RemainingQuantity.Sub(entry.QuantityDeducted)
		batch.deriveStatus()
		if err := tx.Model(batch).Updates(map[string]interface{}{
			"RemainingQuantity": batch.RemainingQuantity,
			"Status":            batch.Status,
		}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		assignment := Assignment{
			BatchId:          batch.ID,
			ReferenceId:      referenceId,
			QuantityDeducted: entry.QuantityDeducted,
			CreatedBy:        userId,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		assignments = append(assignments, &assignment)

		if err := createHistory(tx, string(LedgerActionCommit), assignment.ID, string(StockReferenceTypeAssignment), nil, &assignment,
			fmt.Sprintf("deducted %s from batch %s for reference %d", entry.QuantityDeducted, batch.InstanceCode, referenceId)); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := PublishToStockLedger(ctx, tx, branchId, time.Now().UTC(), referenceId, StockReferenceTypeAssignment, assignments, LedgerActionCommit); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

// ListAssignments returns the append-only deduction trail of a batch,
// oldest first.
func ListAssignments(ctx context.Context, batchId int) ([]*Assignment, error) {

	if err := utils.ValidateResourceId[Batch](ctx, batchId); err != nil {
		return nil, fmt.Errorf("batch not found: %w", err)
	}

	db := config.GetDB()
	var assignments []*Assignment
	if err := db.WithContext(ctx).
		Where("batch_id = ?", batchId).
		Order("id ASC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}
