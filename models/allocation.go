package models

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/coilstock_backend/utils"
	"github.com/shopspring/decimal"
)

// AllocationEntry names one batch and the quantity to deduct from it.
type AllocationEntry struct {
	BatchId          int             `json:"batch_id"`
	InstanceCode     string          `json:"instance_code"`
	QuantityDeducted decimal.Decimal `json:"quantity_deducted"`
}

// AllocationProposal is a non-binding, read-only suggestion. It takes no
// locks and mutates nothing; every quantity in it is re-validated under an
// exclusive row lock at commit time.
type AllocationProposal struct {
	ProductId    int               `json:"product_id"`
	BranchId     int               `json:"branch_id"`
	RequiredQty  decimal.Decimal   `json:"required_qty"`
	AllocatedQty decimal.Decimal   `json:"allocated_qty"`
	Shortfall    decimal.Decimal   `json:"shortfall"`
	Insufficient bool              `json:"insufficient"`
	Entries      []AllocationEntry `json:"entries"`
}

// allocateFIFO walks the batches in the order given and greedily takes
// min(remaining, still required) from each until the requirement is covered
// within the depletion tolerance. Pure; no DB access.
func allocateFIFO(batches []*Batch, requiredQty decimal.Decimal) (entries []AllocationEntry, allocated decimal.Decimal) {
	allocated = decimal.Zero
	stillRequired := requiredQty

	for _, batch := range batches {
		if stillRequired.LessThanOrEqual(depletionTolerance) {
			break
		}
		take := decimal.Min(batch.RemainingQuantity, stillRequired)
		if !take.IsPositive() {
			continue
		}
		entries = append(entries, AllocationEntry{
			BatchId:          batch.ID,
			InstanceCode:     batch.InstanceCode,
			QuantityDeducted: take,
		})
		allocated = allocated.Add(take)
		stillRequired = stillRequired.Sub(take)
	}
	return entries, allocated
}

// ProposeAllocation suggests batches to cover requiredQty of a raw-tracked
// product at a branch. When stock cannot cover the requirement the partial
// proposal is returned alongside an InsufficientStockError carrying the
// shortfall, so the caller can decide whether to accept a partial
// allocation, wait for stock, or fail the production step. Committing a
// partial proposal never happens implicitly; the caller must re-submit the
// partial entries to CommitAllocation.
func ProposeAllocation(ctx context.Context, rawProductId int, requiredQty decimal.Decimal, branchId int) (*AllocationProposal, error) {

	if !requiredQty.IsPositive() {
		return nil, fmt.Errorf("%w: required quantity must be positive", ErrInvalidInput)
	}
	if _, err := validateProductType(ctx, rawProductId, ProductTypeRawTracked); err != nil {
		return nil, err
	}
	if err := validateBranchExists(ctx, branchId); err != nil {
		return nil, err
	}

	batches, err := ListAvailableBatches(ctx, rawProductId, branchId)
	if err != nil {
		return nil, err
	}

	entries, allocated := allocateFIFO(batches, requiredQty)

	proposal := &AllocationProposal{
		ProductId:    rawProductId,
		BranchId:     branchId,
		RequiredQty:  requiredQty,
		AllocatedQty: allocated,
		Shortfall:    decimal.Zero,
		Entries:      entries,
	}

	shortfall := requiredQty.Sub(allocated)
	if shortfall.GreaterThan(depletionTolerance) {
		proposal.Shortfall = shortfall
		proposal.Insufficient = true
		return proposal, &InsufficientStockError{
			ProductId: rawProductId,
			BranchId:  branchId,
			Required:  requiredQty,
			Available: allocated,
			Shortfall: shortfall,
		}
	}
	return proposal, nil
}

// ProposeForVirtualProduct resolves the recipe for a manufactured virtual
// product, derives the raw requirement (with wastage margin), and proposes
// an allocation for it.
func ProposeForVirtualProduct(ctx context.Context, virtualProductId int, virtualQty decimal.Decimal, branchId int) (*AllocationProposal, error) {

	if !virtualQty.IsPositive() {
		return nil, fmt.Errorf("%w: virtual quantity must be positive", ErrInvalidInput)
	}
	if _, err := validateProductType(ctx, virtualProductId, ProductTypeManufacturedVirtual); err != nil {
		return nil, err
	}

	recipe, err := GetRecipeForVirtualProduct(ctx, virtualProductId)
	if err != nil {
		return nil, err
	}

	requiredQty := recipe.RequiredRawQuantity(virtualQty)
	return ProposeAllocation(ctx, recipe.RawProductId, requiredQty, branchId)
}

func validateBranchExists(ctx context.Context, branchId int) error {
	branch, err := GetBranch(ctx, branchId)
	if err != nil {
		return fmt.Errorf("branch not found: %w", err)
	}
	if !utils.DereferencePtr(branch.IsActive) {
		return fmt.Errorf("%w: branch %d is inactive", ErrInvalidInput, branchId)
	}
	return nil
}
