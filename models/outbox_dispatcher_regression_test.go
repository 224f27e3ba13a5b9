package models_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/models"
	"github.com/mmdatafocus/coilstock_backend/workflow"
)

func TestOutboxDispatcherMarksFailedRowsForRetry(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupLedgerTestEnv(t)
	// No project configured: every publish attempt fails, which is exactly
	// the path under test. Rows must go FAILED with a retry schedule, never
	// lost and never stuck PROCESSING.
	t.Setenv("PUBSUB_PROJECT_ID", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("GCP_PROJECT", "")

	branch, coil := seedBranchAndRawProduct(t, ctx, "Main Branch", "COIL-100")
	registerTestBatch(t, ctx, coil.ID, branch.ID, "COIL-100-001", 10)

	db := config.GetDB()
	var pending int64
	if err := db.WithContext(ctx).Model(&models.StockLedgerRecord{}).
		Where("publish_status = ?", models.OutboxPublishStatusPending).
		Count(&pending).Error; err != nil {
		t.Fatalf("count pending outbox rows: %v", err)
	}
	if pending == 0 {
		t.Fatalf("expected registration to write an outbox row")
	}

	dispatcher := workflow.NewOutboxDispatcher(db, config.GetLogger())
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	dispatcher.Run(runCtx)

	var rows []models.StockLedgerRecord
	if err := db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("fetch outbox rows: %v", err)
	}
	for _, row := range rows {
		if row.PublishStatus != models.OutboxPublishStatusFailed {
			t.Fatalf("expected row %d FAILED after publish errors; got %s", row.ID, row.PublishStatus)
		}
		if row.PublishAttempts < 1 {
			t.Fatalf("expected row %d to record an attempt; got %d", row.ID, row.PublishAttempts)
		}
		if row.LastPublishError == nil || *row.LastPublishError == "" {
			t.Fatalf("expected row %d to record the publish error", row.ID)
		}
		if row.NextAttemptAt == nil || !row.NextAttemptAt.After(time.Now().UTC().Add(-time.Second)) {
			t.Fatalf("expected row %d scheduled for retry; got %v", row.ID, row.NextAttemptAt)
		}
		if row.LockedAt != nil || row.LockedBy != nil {
			t.Fatalf("expected row %d unlocked after failure; got locked_at=%v locked_by=%v", row.ID, row.LockedAt, row.LockedBy)
		}
		if row.IsProcessed {
			t.Fatalf("row %d must not be marked processed on failure", row.ID)
		}
	}
}
