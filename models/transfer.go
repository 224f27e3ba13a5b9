package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchTransfer records a batch (or a split portion of it) moving between
// branches. Both outcomes carry the same row type so the conservation
// invariant is checkable in one place:
//
//   - FullMove: the whole remaining quantity moves. The source row becomes
//     terminal (status Transferred, remaining 0) and a new row carries the
//     stock at the destination under the same instance code.
//   - SplitMove: part of the remaining quantity moves. The source stays in
//     stock with its original quantity untouched (virtual split); the moved
//     part becomes a new row at the destination.
//
// Either way the sum of remaining quantity across the affected rows is
// unchanged by the transfer.
type BatchTransfer struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BatchId      int             `gorm:"index;not null" json:"batch_id"`
	NewBatchId   int             `gorm:"index;not null" json:"new_batch_id"`
	FromBranchId int             `gorm:"index;not null" json:"from_branch_id"`
	ToBranchId   int             `gorm:"index;not null" json:"to_branch_id"`
	TransferType TransferType    `gorm:"type:enum('FullMove','SplitMove');not null" json:"transfer_type"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	CreatedBy    int             `json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TransferBatch moves quantity units of a batch to another branch.
func TransferBatch(ctx context.Context, batchId int, toBranchId int, quantity decimal.Decimal) (*BatchTransfer, error) {

	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: transfer quantity must be positive", ErrInvalidInput)
	}
	if err := validateBranchExists(ctx, toBranchId); err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	source, err := lockBatch(tx, batchId)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("batch %d: %w", batchId, err)
	}
	if source.BranchId == toBranchId {
		tx.Rollback()
		return nil, ErrSameBranchTransfer
	}
	if source.Status != BatchStatusInStock {
		tx.Rollback()
		return nil, fmt.Errorf("batch %d: %w", batchId, ErrBatchNotAdjustable)
	}
	if quantity.GreaterThan(source.RemainingQuantity) {
		tx.Rollback()
		return nil, fmt.Errorf("batch %d: %w (remaining %s, requested %s)",
			batchId, ErrInsufficientQuantity, source.RemainingQuantity, quantity)
	}
	before := *source

	transferType := TransferTypeSplitMove
	if quantity.Equal(source.RemainingQuantity) {
		transferType = TransferTypeFullMove
	}

	destinationCode, err := destinationInstanceCode(tx, source, toBranchId, transferType)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// destination row carries the moved stock; original == remaining == moved
	destination := Batch{
		ProductId:         source.ProductId,
		BranchId:          toBranchId,
		InstanceCode:      destinationCode,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		Status:            BatchStatusInStock,
		CreatedBy:         userId,
	}
	if err := tx.Create(&destination).Error; err != nil {
		tx.Rollback()
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %q at branch %d", ErrDuplicateInstanceCode, destination.InstanceCode, toBranchId)
		}
		return nil, err
	}

	source.RemainingQuantity = source.RemainingQuantity.Sub(quantity)
	if transferType == TransferTypeFullMove {
		source.Status = BatchStatusTransferred
	} else {
		// a split can leave a sub-tolerance residue
		source.deriveStatus()
	}
	if err := tx.Model(source).Updates(map[string]interface{}{
		"RemainingQuantity": source.RemainingQuantity,
		"Status":            source.Status,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	transfer := BatchTransfer{
		BatchId:      source.ID,
		NewBatchId:   destination.ID,
		FromBranchId: before.BranchId,
		ToBranchId:   toBranchId,
		TransferType: transferType,
		Quantity:     quantity,
		CreatedBy:    userId,
	}
	if err := tx.Create(&transfer).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := createHistory(tx, string(LedgerActionTransfer), transfer.ID, string(StockReferenceTypeTransfer), &before, source,
		fmt.Sprintf("%s of %s units from branch %d to branch %d (batch %s)",
			transferType, quantity, before.BranchId, toBranchId, source.InstanceCode)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishToStockLedger(ctx, tx, before.BranchId, time.Now().UTC(), transfer.ID, StockReferenceTypeTransfer, &transfer, LedgerActionTransfer); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

// ListTransfers returns transfers touching a batch (as source or as the
// newly created destination row), oldest first. batchId of 0 lists all.
func ListTransfers(ctx context.Context, batchId int) ([]*BatchTransfer, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if batchId > 0 {
		dbCtx = dbCtx.Where("batch_id = ? OR new_batch_id = ?", batchId, batchId)
	}

	var transfers []*BatchTransfer
	if err := dbCtx.Order("id ASC").Find(&transfers).Error; err != nil {
		return nil, err
	}
	return transfers, nil
}

// destinationInstanceCode picks an instance code free at the destination
// branch. A full move keeps the source code (the physical batch is unchanged);
// a split is a distinct entity and gets a /sourceID suffix. Either way a taken
// code falls back to the suffixed form, then to /sourceID/2, /sourceID/3, ...
// (a batch bounced back to a branch collides with its own retired source row,
// and the same source can feed the same branch repeatedly). Concurrent writers
// racing on the same candidate are caught by the unique index at create time.
func destinationInstanceCode(tx *gorm.DB, source *Batch, toBranchId int, transferType TransferType) (string, error) {
	taken := func(code string) (bool, error) {
		var count int64
		err := tx.Model(&Batch{}).
			Where("branch_id = ? AND instance_code = ?", toBranchId, code).
			Count(&count).Error
		return count > 0, err
	}

	if transferType == TransferTypeFullMove {
		if inUse, err := taken(source.InstanceCode); err != nil {
			return "", err
		} else if !inUse {
			return source.InstanceCode, nil
		}
	}

	suffixed := fmt.Sprintf("%s/%d", source.InstanceCode, source.ID)
	candidate := suffixed
	for seq := 2; ; seq++ {
		if inUse, err := taken(candidate); err != nil {
			return "", err
		} else if !inUse {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s/%d", suffixed, seq)
	}
}
