package models

// ProductType mirrors the catalog's classification. Only raw-tracked
// products ('R') carry physical batches in this ledger; only manufactured
// virtual products ('M') resolve through recipes.
type ProductType string

const (
	ProductTypeStandard            ProductType = "S"
	ProductTypeCompound            ProductType = "C"
	ProductTypeRawTracked          ProductType = "R"
	ProductTypeManufacturedVirtual ProductType = "M"
)

type BatchStatus string

const (
	BatchStatusInStock     BatchStatus = "InStock"
	BatchStatusDepleted    BatchStatus = "Depleted"
	BatchStatusTransferred BatchStatus = "Transferred"
	BatchStatusCancelled   BatchStatus = "Cancelled"
)

// TransferType tags the two outcomes of a branch transfer so the
// conservation invariant stays centrally checkable.
type TransferType string

const (
	TransferTypeFullMove  TransferType = "FullMove"
	TransferTypeSplitMove TransferType = "SplitMove"
)

// StockReferenceType classifies what a ledger mutation was driven by.
type StockReferenceType string

const (
	StockReferenceTypeBatch      StockReferenceType = "BT"
	StockReferenceTypeAssignment StockReferenceType = "AS"
	StockReferenceTypeTransfer   StockReferenceType = "TR"
	StockReferenceTypeAdjustment StockReferenceType = "ADJ"
)

type LedgerAction string

const (
	LedgerActionCreate   LedgerAction = "Create"
	LedgerActionCommit   LedgerAction = "Commit"
	LedgerActionTransfer LedgerAction = "Transfer"
	LedgerActionAdjust   LedgerAction = "Adjust"
	LedgerActionCancel   LedgerAction = "Cancel"
)

// Outbox publish lifecycle.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusPublished  = "PUBLISHED"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
