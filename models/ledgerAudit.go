package models

import (
	"context"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/utils"
	"github.com/shopspring/decimal"
)

// The ledger of record must always satisfy, per batch:
//
//	original == remaining + Σ assignments + Σ transfers out − Σ physical adjustment deltas
//
// (revise-original adjustments move original and remaining together, so
// they cancel out of the identity). A batch that fails this check has been
// mutated outside the engine or hit a bug; surface it to an operator.

type ConservationResult struct {
	BatchId        int             `json:"batch_id"`
	InstanceCode   string          `json:"instance_code"`
	BranchId       int             `json:"branch_id"`
	Original       decimal.Decimal `json:"original"`
	Remaining      decimal.Decimal `json:"remaining"`
	Assigned       decimal.Decimal `json:"assigned"`
	TransferredOut decimal.Decimal `json:"transferred_out"`
	AdjustedDelta  decimal.Decimal `json:"adjusted_delta"`
	Difference     decimal.Decimal `json:"difference"`
	Consistent     bool            `json:"consistent"`
}

// CheckBatchConservation recomputes the conservation identity for one batch.
func CheckBatchConservation(ctx context.Context, batchId int) (*ConservationResult, error) {
	batch, err := GetBatch(ctx, batchId)
	if err != nil {
		return nil, err
	}
	return conservationFor(ctx, batch)
}

func conservationFor(ctx context.Context, batch *Batch) (*ConservationResult, error) {

	db := config.GetDB()

	var assigned decimal.Decimal
	if err := db.WithContext(ctx).Raw(
		"SELECT COALESCE(SUM(quantity_deducted), 0) FROM assignments WHERE batch_id = ?", batch.ID).
		Scan(&assigned).Error; err != nil {
		return nil, err
	}

	var transferredOut decimal.Decimal
	if err := db.WithContext(ctx).Raw(
		"SELECT COALESCE(SUM(quantity), 0) FROM batch_transfers WHERE batch_id = ?", batch.ID).
		Scan(&transferredOut).Error; err != nil {
		return nil, err
	}

	// physical adjustments only; corrections move original alongside remaining
	var adjustedDelta decimal.Decimal
	if err := db.WithContext(ctx).Raw(
		"SELECT COALESCE(SUM(delta), 0) FROM batch_adjustments WHERE batch_id = ? AND revise_original = 0", batch.ID).
		Scan(&adjustedDelta).Error; err != nil {
		return nil, err
	}

	expected := batch.RemainingQuantity.Add(assigned).Add(transferredOut).Sub(adjustedDelta)
	difference := batch.OriginalQuantity.Sub(expected)

	return &ConservationResult{
		BatchId:        batch.ID,
		InstanceCode:   batch.InstanceCode,
		BranchId:       batch.BranchId,
		Original:       batch.OriginalQuantity,
		Remaining:      batch.RemainingQuantity,
		Assigned:       assigned,
		TransferredOut: transferredOut,
		AdjustedDelta:  adjustedDelta,
		Difference:     difference,
		Consistent:     difference.Abs().LessThanOrEqual(depletionTolerance),
	}, nil
}

// VerifyLedgerConservation runs the conservation check over every batch and
// returns the inconsistent ones.
func VerifyLedgerConservation(ctx context.Context) ([]*ConservationResult, error) {

	batches, err := utils.FetchAllModels[Batch](ctx)
	if err != nil {
		return nil, err
	}

	var violations []*ConservationResult
	for _, batch := range batches {
		result, err := conservationFor(ctx, batch)
		if err != nil {
			return nil, err
		}
		if !result.Consistent {
			violations = append(violations, result)
		}
	}
	return violations, nil
}
