package models_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/mmdatafocus/coilstock_backend/models"
	"github.com/shopspring/decimal"
)

func TestRegisterBatchRejectsDuplicateInstanceCodePerBranch(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupLedgerTestEnv(t)
	main, coil := seedBranchAndRawProduct(t, ctx, "Main Branch", "COIL-110")
	mandalay, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Mandalay Branch", City: "Mandalay"})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	registerTestBatch(t, ctx, coil.ID, main.ID, "COIL-110-001", 50)

	// same code at the same branch is rejected, whatever the batch status
	if _, err := models.RegisterBatch(ctx, &models.NewBatch{
		ProductId:        coil.ID,
		BranchId:         main.ID,
		InstanceCode:     "COIL-110-001",
		OriginalQuantity: decimal.NewFromInt(30),
	}); !errors.Is(err, models.ErrDuplicateInstanceCode) {
		t.Fatalf("expected ErrDuplicateInstanceCode; got %v", err)
	}

	// the code is only scoped per branch
	if _, err := models.RegisterBatch(ctx, &models.NewBatch{
		ProductId:        coil.ID,
		BranchId:         mandalay.ID,
		InstanceCode:     "COIL-110-001",
		OriginalQuantity: decimal.NewFromInt(30),
	}); err != nil {
		t.Fatalf("same code at another branch should register: %v", err)
	}
}
