package models_test

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/models"
	"github.com/shopspring/decimal"
)

func TestTransferBatchFullMoveRetiresSourceRow(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupLedgerTestEnv(t)
	main, coil := seedBranchAndRawProduct(t, ctx, "Main Branch", "COIL-070")
	mandalay, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Mandalay Branch", City: "Mandalay"})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	source := registerTestBatch(t, ctx, coil.ID, main.ID, "COIL-070-001", 50)

	transfer, err := models.TransferBatch(ctx, source.ID, mandalay.ID, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("TransferBatch: %v", err)
	}
	if transfer.TransferType != models.TransferTypeFullMove {
		t.Fatalf("expected FullMove; got %s", transfer.TransferType)
	}

	after, _ := models.GetBatch(ctx, source.ID)
	if after.Status != models.BatchStatusTransferred || !after.RemainingQuantity.IsZero() {
		t.Fatalf("expected source Transferred with remaining=0; got status=%s remaining=%s", after.Status, after.RemainingQuantity)
	}

	destination, err := models.GetBatch(ctx, transfer.NewBatchId)
	if err != nil {
		t.Fatalf("GetBatch(destination): %v", err)
	}
	if destination.BranchId != mandalay.ID || destination.InstanceCode != "COIL-070-001" {
		t.Fatalf("expected destination at mandalay under the same code; got %+v", destination)
	}
	if destination.OriginalQuantity.Cmp(decimal.NewFromInt(50)) != 0 || destination.RemainingQuantity.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("expected destination original=remaining=50; got %+v", destination)
	}

	// the retired row is no longer allocatable, the destination row is
	available, err := models.ListAvailableBatches(ctx, coil.ID, 0)
	if err != nil {
		t.Fatalf("ListAvailableBatches: %v", err)
	}
	if len(available) != 1 || available[0].ID != destination.ID {
		t.Fatalf("expected only the destination row available; got %+v", available)
	}

	// a terminal row rejects further movement
	if _, err := models.TransferBatch(ctx, source.ID, main.ID, decimal.NewFromInt(1)); !errors.Is(err, models.ErrBatchNotAdjustable) {
		t.Fatalf("expected ErrBatchNotAdjustable on transferred source; got %v", err)
	}

	violations, err := models.VerifyLedgerConservation(ctx)
	if err != nil {
		t.Fatalf("VerifyLedgerConservation: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected conservation to hold after full move; got %+v", violations)
	}
}

func TestTransferBatchSplitMoveKeepsSourceOriginal(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupLedgerTestEnv(t)
	main, coil := seedBranchAndRawProduct(t, ctx, "Main Branch", "COIL-080")
	mandalay, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Mandalay Branch", City: "Mandalay"})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	source := registerTestBatch(t, ctx, coil.ID, main.ID, "COIL-080-001", 50)

	if _, err := models.TransferBatch(ctx, source.ID, main.ID, decimal.NewFromInt(20)); !errors.Is(err, models.ErrSameBranchTransfer) {
		t.Fatalf("expected ErrSameBranchTransfer; got %v", err)
	}
	if _, err := models.TransferBatch(ctx, source.ID, mandalay.ID, decimal.NewFromInt(60)); !errors.Is(err, models.ErrInsufficientQuantity) {
		t.Fatalf("expected ErrInsufficientQuantity; got %v", err)
	}

	transfer, err := models.TransferBatch(ctx, source.ID, mandalay.ID, decimal.NewFromInt(20))
	if err != nil {
		t.Fatalf("TransferBatch: %v", err)
	}
	if transfer.TransferType != models.TransferTypeSplitMove {
		t.Fatalf("expected SplitMove; got %s", transfer.TransferType)
	}

	after, _ := models.GetBatch(ctx, source.ID)
	if after.Status != models.BatchStatusInStock {
		t.Fatalf("expected source still in stock; got %s", after.Status)
	}
	if after.RemainingQuantity.Cmp(decimal.NewFromInt(30)) != 0 || after.OriginalQuantity.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("expected source remaining=30 original=50; got remaining=%s original=%s", after.RemainingQuantity, after.OriginalQuantity)
	}

	destination, err := models.GetBatch(ctx, transfer.NewBatchId)
	if err != nil {
		t.Fatalf("GetBatch(destination): %v", err)
	}
	wantCode := fmt.Sprintf("COIL-080-001/%d", source.ID)
	if destination.InstanceCode != wantCode {
		t.Fatalf("expected split code %q; got %q", wantCode, destination.InstanceCode)
	}
	if destination.OriginalQuantity.Cmp(decimal.NewFromInt(20)) != 0 || destination.RemainingQuantity.Cmp(decimal.NewFromInt(20)) != 0 {
		t.Fatalf("expected destination original=remaining=20; got %+v", destination)
	}

	// moved quantity is visible from both ends of the transfer
	fromSource, err := models.ListTransfers(ctx, source.ID)
	if err != nil {
		t.Fatalf("ListTransfers(source): %v", err)
	}
	fromDestination, err := models.ListTransfers(ctx, destination.ID)
	if err != nil {
		t.Fatalf("ListTransfers(destination): %v", err)
	}
	if len(fromSource) != 1 || len(fromDestination) != 1 || fromSource[0].ID != fromDestination[0].ID {
		t.Fatalf("expected the same transfer row from both sides; got %+v / %+v", fromSource, fromDestination)
	}

	violations, err := models.VerifyLedgerConservation(ctx)
	if err != nil {
		t.Fatalf("VerifyLedgerConservation: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected conservation to hold after split move; got %+v", violations)
	}
}

func TestTransferBatchBounceBackDisambiguatesInstanceCode(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupLedgerTestEnv(t)
	main, coil := seedBranchAndRawProduct(t, ctx, "Main Branch", "COIL-084")
	mandalay, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Mandalay Branch", City: "Mandalay"})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	source := registerTestBatch(t, ctx, coil.ID, main.ID, "COIL-084-001", 40)

	// full move out keeps the code at the destination
	out, err := models.TransferBatch(ctx, source.ID, mandalay.ID, decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("TransferBatch(out): %v", err)
	}
	atMandalay, _ := models.GetBatch(ctx, out.NewBatchId)
	if atMandalay.InstanceCode != "COIL-084-001" {
		t.Fatalf("expected destination to keep the code; got %q", atMandalay.InstanceCode)
	}

	// bouncing back collides with the retired source row at the origin
	back, err := models.TransferBatch(ctx, atMandalay.ID, main.ID, decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("TransferBatch(back): %v", err)
	}
	returned, _ := models.GetBatch(ctx, back.NewBatchId)
	wantCode := fmt.Sprintf("COIL-084-001/%d", atMandalay.ID)
	if returned.InstanceCode != wantCode {
		t.Fatalf("expected bounce-back code %q; got %q", wantCode, returned.InstanceCode)
	}
	if returned.BranchId != main.ID || returned.RemainingQuantity.Cmp(decimal.NewFromInt(40)) != 0 {
		t.Fatalf("unexpected bounce-back row: %+v", returned)
	}

	violations, err := models.VerifyLedgerConservation(ctx)
	if err != nil {
		t.Fatalf("VerifyLedgerConservation: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected conservation to hold across the round trip; got %+v", violations)
	}
}

func TestTransferBatchRepeatedSplitsToSameBranch(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupLedgerTestEnv(t)
	main, coil := seedBranchAndRawProduct(t, ctx, "Main Branch", "COIL-085")
	mandalay, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Mandalay Branch", City: "Mandalay"})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	source := registerTestBatch(t, ctx, coil.ID, main.ID, "COIL-085-001", 50)

	first, err := models.TransferBatch(ctx, source.ID, mandalay.ID, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("TransferBatch(first split): %v", err)
	}
	second, err := models.TransferBatch(ctx, source.ID, mandalay.ID, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("TransferBatch(second split): %v", err)
	}

	firstRow, _ := models.GetBatch(ctx, first.NewBatchId)
	secondRow, _ := models.GetBatch(ctx, second.NewBatchId)
	wantFirst := fmt.Sprintf("COIL-085-001/%d", source.ID)
	wantSecond := fmt.Sprintf("COIL-085-001/%d/2", source.ID)
	if firstRow.InstanceCode != wantFirst || secondRow.InstanceCode != wantSecond {
		t.Fatalf("expected split codes %q then %q; got %q / %q",
			wantFirst, wantSecond, firstRow.InstanceCode, secondRow.InstanceCode)
	}

	after, _ := models.GetBatch(ctx, source.ID)
	if after.RemainingQuantity.Cmp(decimal.NewFromInt(30)) != 0 {
		t.Fatalf("expected source remaining=30 after two splits; got %s", after.RemainingQuantity)
	}
}

func TestTransferBatchSplitResidueDepletesSource(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupLedgerTestEnv(t)
	main, coil := seedBranchAndRawProduct(t, ctx, "Main Branch", "COIL-086")
	mandalay, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Mandalay Branch", City: "Mandalay"})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	batch, err := models.RegisterBatch(ctx, &models.NewBatch{
		ProductId:        coil.ID,
		BranchId:         main.ID,
		InstanceCode:     "COIL-086-001",
		OriginalQuantity: decimal.NewFromFloat(10.0005),
	})
	if err != nil {
		t.Fatalf("RegisterBatch: %v", err)
	}

	// a split leaving only a sub-tolerance residue depletes the source
	transfer, err := models.TransferBatch(ctx, batch.ID, mandalay.ID, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("TransferBatch: %v", err)
	}
	if transfer.TransferType != models.TransferTypeSplitMove {
		t.Fatalf("expected SplitMove; got %s", transfer.TransferType)
	}

	after, _ := models.GetBatch(ctx, batch.ID)
	if after.Status != models.BatchStatusDepleted {
		t.Fatalf("expected source depleted on sub-tolerance residue; got %s", after.Status)
	}

	available, err := models.ListAvailableBatches(ctx, coil.ID, main.ID)
	if err != nil {
		t.Fatalf("ListAvailableBatches: %v", err)
	}
	if len(available) != 0 {
		t.Fatalf("expected no available stock at the source branch; got %+v", available)
	}
}

func TestAdjustBatchBoundsRevivalAndConservation(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupLedgerTestEnv(t)
	branch, coil := seedBranchAndRawProduct(t, ctx, "Main Branch", "COIL-090")
	batch := registerTestBatch(t, ctx, coil.ID, branch.ID, "COIL-090-001", 10)

	// drain the batch
	if _, err := models.CommitAllocation(ctx, branch.ID, []models.NewAssignmentEntry{
		{BatchId: batch.ID, QuantityDeducted: decimal.NewFromInt(10)},
	}, 9300); err != nil {
		t.Fatalf("CommitAllocation: %v", err)
	}
	drained, _ := models.GetBatch(ctx, batch.ID)
	if drained.Status != models.BatchStatusDepleted {
		t.Fatalf("expected depleted; got %s", drained.Status)
	}

	// a recount found 2 loose units; positive delta revives the batch
	if _, err := models.AdjustBatch(ctx, &models.NewBatchAdjustment{
		BatchId: batch.ID,
		Delta:   decimal.NewFromInt(2),
		Reason:  "recount found loose stock",
	}); err != nil {
		t.Fatalf("AdjustBatch(+2): %v", err)
	}
	revived, _ := models.GetBatch(ctx, batch.ID)
	if revived.Status != models.BatchStatusInStock || revived.RemainingQuantity.Cmp(decimal.NewFromInt(2)) != 0 {
		t.Fatalf("expected revived with remaining=2; got status=%s remaining=%s", revived.Status, revived.RemainingQuantity)
	}

	// remaining can never go negative
	if _, err := models.AdjustBatch(ctx, &models.NewBatchAdjustment{
		BatchId: batch.ID,
		Delta:   decimal.NewFromInt(-3),
		Reason:  "bad delta",
	}); !errors.Is(err, models.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation on negative remaining; got %v", err)
	}

	// a physical adjustment cannot push remaining past original
	if _, err := models.AdjustBatch(ctx, &models.NewBatchAdjustment{
		BatchId: batch.ID,
		Delta:   decimal.NewFromInt(9),
		Reason:  "overshoot",
	}); !errors.Is(err, models.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation on remaining > original; got %v", err)
	}

	// a data-entry correction moves original alongside remaining
	if _, err := models.AdjustBatch(ctx, &models.NewBatchAdjustment{
		BatchId:        batch.ID,
		Delta:          decimal.NewFromInt(5),
		Reason:         "supplier packing slip was wrong",
		ReviseOriginal: true,
	}); err != nil {
		t.Fatalf("AdjustBatch(revise original): %v", err)
	}
	corrected, _ := models.GetBatch(ctx, batch.ID)
	if corrected.OriginalQuantity.Cmp(decimal.NewFromInt(15)) != 0 || corrected.RemainingQuantity.Cmp(decimal.NewFromInt(7)) != 0 {
		t.Fatalf("expected original=15 remaining=7 after correction; got original=%s remaining=%s", corrected.OriginalQuantity, corrected.RemainingQuantity)
	}

	trail, err := models.ListAdjustments(ctx, batch.ID)
	if err != nil {
		t.Fatalf("ListAdjustments: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("expected 2 adjustment rows (rejected ones write nothing); got %d", len(trail))
	}

	// assignments, physical adjustments and the correction all reconcile
	result, err := models.CheckBatchConservation(ctx, batch.ID)
	if err != nil {
		t.Fatalf("CheckBatchConservation: %v", err)
	}
	if !result.Consistent {
		t.Fatalf("expected conservation to hold; got %+v", result)
	}

	// corrupt the row behind the engine's back; the audit must catch it
	db := config.GetDB()
	if err := db.WithContext(ctx).Exec(
		"UPDATE batches SET remaining_quantity = remaining_quantity + 1 WHERE id = ?", batch.ID).Error; err != nil {
		t.Fatalf("corrupt batch row: %v", err)
	}
	violations, err := models.VerifyLedgerConservation(ctx)
	if err != nil {
		t.Fatalf("VerifyLedgerConservation: %v", err)
	}
	if len(violations) != 1 || violations[0].BatchId != batch.ID {
		t.Fatalf("expected the corrupted batch to be flagged; got %+v", violations)
	}
}
