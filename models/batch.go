package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// depletionTolerance absorbs floating rounding left over from recipe math.
// A batch whose remaining quantity is within this of zero is depleted.
var depletionTolerance = decimal.NewFromFloat(0.001)

// Batch is one physically distinct quantity of a raw-tracked product (a
// coil, a roll, a drum) owned by exactly one branch at a time. Rows are
// never physically deleted; depleted/cancelled/transferred are terminal
// states kept for the audit trail.
type Batch struct {
	ID                int             `gorm:"primary_key" json:"id"`
	ProductId         int             `gorm:"index;not null" json:"product_id"`
	BranchId          int             `gorm:"not null;uniqueIndex:idx_batch_code_branch" json:"branch_id"`
	InstanceCode      string          `gorm:"size:100;not null;uniqueIndex:idx_batch_code_branch" json:"instance_code"`
	OriginalQuantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"original_quantity"`
	RemainingQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"remaining_quantity"`
	Status            BatchStatus     `gorm:"type:enum('InStock','Depleted','Transferred','Cancelled');default:InStock" json:"status"`
	CreatedBy         int             `json:"created_by"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBatch struct {
	ProductId        int             `json:"product_id" validate:"required,gt=0"`
	BranchId         int             `json:"branch_id" validate:"required,gt=0"`
	InstanceCode     string          `json:"instance_code" validate:"required"`
	OriginalQuantity decimal.Decimal `json:"original_quantity"`
}

// deriveStatus re-evaluates in-stock vs depleted after a quantity change.
// Terminal states (transferred, cancelled) are never re-derived here.
func (b *Batch) deriveStatus() {
	if b.Status == BatchStatusTransferred || b.Status == BatchStatusCancelled {
		return
	}
	if b.RemainingQuantity.LessThanOrEqual(depletionTolerance) {
		b.Status = BatchStatusDepleted
	} else {
		b.Status = BatchStatusInStock
	}
}

func (input *NewBatch) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.OriginalQuantity.IsPositive() {
		return fmt.Errorf("%w: original quantity must be positive", ErrInvalidInput)
	}
	if _, err := validateProductType(ctx, input.ProductId, ProductTypeRawTracked); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Branch](ctx, input.BranchId); err != nil {
		return fmt.Errorf("branch not found: %w", err)
	}
	// instance code is the human-readable identity, unique per branch
	count, err := utils.ResourceCountWhere[Batch](ctx, "branch_id = ? AND instance_code = ?",
		input.BranchId, input.InstanceCode)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %q at branch %d", ErrDuplicateInstanceCode, input.InstanceCode, input.BranchId)
	}
	return nil
}

// RegisterBatch records a new physical batch at purchase/opening-stock time.
// original == remaining at creation.
func RegisterBatch(ctx context.Context, input *NewBatch) (*Batch, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	batch := Batch{
		ProductId:         input.ProductId,
		BranchId:          input.BranchId,
		InstanceCode:      input.InstanceCode,
		OriginalQuantity:  input.OriginalQuantity,
		RemainingQuantity: input.OriginalQuantity,
		Status:            BatchStatusInStock,
		CreatedBy:         userId,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Create(&batch).Error; err != nil {
		tx.Rollback()
		// the unique index closes the validate/create race
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %q at branch %d", ErrDuplicateInstanceCode, batch.InstanceCode, batch.BranchId)
		}
		return nil, err
	}
	if err := createHistory(tx, string(LedgerActionCreate), batch.ID, string(StockReferenceTypeBatch), nil, &batch,
		fmt.Sprintf("batch %s registered with %s units", batch.InstanceCode, batch.OriginalQuantity)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishToStockLedger(ctx, tx, batch.BranchId, batch.CreatedAt, batch.ID, StockReferenceTypeBatch, &batch, LedgerActionCreate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// may return RecordNotFound
func GetBatch(ctx context.Context, id int) (*Batch, error) {
	return utils.FetchModel[Batch](ctx, id)
}

// ListAvailableBatches returns in-stock batches with remaining quantity,
// oldest first. FIFO ordering is a contract: the proposer and every consumer
// deplete stale stock before fresh stock. branchId of 0 means all branches.
func ListAvailableBatches(ctx context.Context, productId int, branchId int) ([]*Batch, error) {

	if err := utils.ValidateResourceId[Product](ctx, productId); err != nil {
		return nil, fmt.Errorf("product not found: %w", err)
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("product_id = ?", productId).
		Where("status = ?", BatchStatusInStock).
		Where("remaining_quantity > ?", depletionTolerance)
	if branchId > 0 {
		dbCtx = dbCtx.Where("branch_id = ?", branchId)
	}

	var batches []*Batch
	// id breaks created_at ties deterministically
	if err := dbCtx.Order("created_at ASC").Order("id ASC").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// CancelBatch marks an in-stock batch cancelled (e.g. written off or
// returned to the supplier). Terminal; the row stays for the audit trail.
func CancelBatch(ctx context.Context, id int, reason string) (*Batch, error) {

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	batch, err := lockBatch(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if batch.Status != BatchStatusInStock && batch.Status != BatchStatusDepleted {
		tx.Rollback()
		return nil, ErrBatchNotAdjustable
	}
	before := *batch

	batch.Status = BatchStatusCancelled
	if err := tx.Model(batch).Update("Status", BatchStatusCancelled).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx, string(LedgerActionCancel), batch.ID, string(StockReferenceTypeBatch), &before, batch, reason); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishToStockLedger(ctx, tx, batch.BranchId, time.Now().UTC(), batch.ID, StockReferenceTypeBatch, batch, LedgerActionCancel); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return batch, nil
}

// lockBatch re-reads a batch under an exclusive row lock. Every mutating
// path must go through this before trusting RemainingQuantity.
// (may return RecordNotFound)
func lockBatch(tx *gorm.DB, id int) (*Batch, error) {
	var batch Batch
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&batch, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &batch, nil
}
