package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/models"
	"github.com/mmdatafocus/coilstock_backend/utils"
	"github.com/shopspring/decimal"
)

// migrate-seed migrates the batch ledger schema and optionally seeds a
// small development dataset (two branches, a raw/virtual product pair, a
// recipe, and a few batches).
//
// Example:
//
//	go run ./cmd/migrate-seed/ -seed -quantities 150,120,80
func main() {
	seed := flag.Bool("seed", false, "Seed development data after migrating")
	quantities := flag.String("quantities", "150,120,80", "Comma-separated batch quantities to seed")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
	fmt.Println("schema migrated")

	if !*seed {
		return
	}

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "seed")
	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())

	var seedQuantities []decimal.Decimal
	for _, raw := range strings.Split(*quantities, ",") {
		qty, err := utils.ConvertStringToDecimal(raw)
		if err != nil {
			fail(fmt.Sprintf("parse quantity %q", raw), err)
		}
		seedQuantities = append(seedQuantities, qty)
	}

	mainBranch, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Main Branch", City: "Yangon"})
	if err != nil {
		fail("create main branch", err)
	}
	if _, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Mandalay Branch", City: "Mandalay"}); err != nil {
		fail("create second branch", err)
	}

	coil, err := models.CreateProduct(ctx, &models.NewProduct{
		Name: "Aluminium Coil 0.35mm",
		Sku:  "COIL-035",
		Type: models.ProductTypeRawTracked,
	})
	if err != nil {
		fail("create raw product", err)
	}
	sheet, err := models.CreateProduct(ctx, &models.NewProduct{
		Name: "Roofing Sheet 8ft",
		Sku:  "SHEET-8",
		Type: models.ProductTypeManufacturedVirtual,
	})
	if err != nil {
		fail("create virtual product", err)
	}

	if _, err := models.CreateRecipe(ctx, &models.NewRecipe{
		Name:             "8ft sheet from 0.35mm coil",
		VirtualProductId: sheet.ID,
		RawProductId:     coil.ID,
		ConversionFactor: decimal.NewFromFloat(2.44),
		WastageMargin:    decimal.NewFromInt(5),
	}); err != nil {
		fail("create recipe", err)
	}

	for i, qty := range seedQuantities {
		if _, err := models.RegisterBatch(ctx, &models.NewBatch{
			ProductId:        coil.ID,
			BranchId:         mainBranch.ID,
			InstanceCode:     fmt.Sprintf("COIL-035-%03d", i+1),
			OriginalQuantity: qty,
		}); err != nil {
			fail("register batch", err)
		}
	}
	fmt.Println("development data seeded")
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
