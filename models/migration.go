package models

import (
	"log"

	"github.com/mmdatafocus/coilstock_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Branch{}, &Product{}, &Recipe{},
		&Batch{}, &Assignment{}, &BatchTransfer{}, &BatchAdjustment{},
		&History{}, &StockLedgerRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
