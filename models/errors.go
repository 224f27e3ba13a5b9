package models

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// Validation errors are detected before any transaction is opened.
// StaleBatch is detected inside the commit transaction and is recoverable:
// the caller should re-propose and retry. InvariantViolation is a hard
// failure and must be surfaced to an operator.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidProductType    = errors.New("product has the wrong type for this operation")
	ErrDuplicateRecipe       = errors.New("a recipe already exists for this product pair")
	ErrDuplicateInstanceCode = errors.New("a batch with this instance code already exists at the branch")
	ErrSameBranchTransfer    = errors.New("destination branch equals source branch")
	ErrInsufficientQuantity  = errors.New("insufficient remaining quantity")
	ErrBranchMismatch        = errors.New("batch is not owned by the expected branch")
	ErrBatchNotAdjustable    = errors.New("batch is transferred or cancelled and can no longer be adjusted")
	ErrStaleBatch            = errors.New("batch remaining quantity changed since proposal")
	ErrInsufficientStock     = errors.New("available stock cannot satisfy the required quantity")
	ErrInvariantViolation    = errors.New("batch quantity invariant violated")
)

// isDuplicateKeyError reports a MySQL unique-index violation (error 1062).
func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// StaleBatchError reports a commit-time re-validation failure caused by a
// concurrent writer shrinking the batch since the proposal was generated.
type StaleBatchError struct {
	BatchId   int
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *StaleBatchError) Error() string {
	return fmt.Sprintf("stale batch %d: requested %s but only %s remaining", e.BatchId, e.Requested, e.Remaining)
}

func (e *StaleBatchError) Is(target error) bool {
	return target == ErrStaleBatch
}

// InsufficientStockError carries the shortfall so the calling workflow can
// decide whether to accept a partial allocation, wait for stock, or fail.
type InsufficientStockError struct {
	ProductId int
	BranchId  int
	Required  decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d at branch %d: required %s, available %s (short %s)",
		e.ProductId, e.BranchId, e.Required, e.Available, e.Shortfall)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
