package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/models"
)

// ledger-verify recomputes the conservation identity for every batch
// (original == remaining + assignments + transfers out - physical
// adjustment deltas) and prints any batch that fails it. Run this after
// manual data fixes or when reconciling a stock count.
//
// Example:
//
//	go run ./cmd/ledger-verify/ -batch-id=42
func main() {
	batchID := flag.Int("batch-id", 0, "Verify a single batch (0 = all batches)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	ctx := context.Background()

	if *batchID > 0 {
		result, err := models.CheckBatchConservation(ctx, *batchID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "check batch %d: %v\n", *batchID, err)
			os.Exit(1)
		}
		printResult(result)
		if !result.Consistent {
			os.Exit(2)
		}
		return
	}

	violations, err := models.VerifyLedgerConservation(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify ledger: %v\n", err)
		os.Exit(1)
	}
	if len(violations) == 0 {
		fmt.Println("all batches satisfy the conservation identity")
		return
	}
	fmt.Printf("%d batch(es) violate the conservation identity:\n", len(violations))
	for _, v := range violations {
		printResult(v)
	}
	os.Exit(2)
}

func printResult(r *models.ConservationResult) {
	fmt.Printf("batch=%d code=%q branch=%d original=%s remaining=%s assigned=%s transferred_out=%s adjusted=%s diff=%s consistent=%v\n",
		r.BatchId, r.InstanceCode, r.BranchId, r.Original, r.Remaining, r.Assigned, r.TransferredOut, r.AdjustedDelta, r.Difference, r.Consistent)
}
