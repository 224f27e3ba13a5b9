package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/utils"
)

// Product is the engine's view of the external catalog. The ledger only
// needs identity and type; pricing, units and presentation live elsewhere.
type Product struct {
	ID        int         `gorm:"primary_key" json:"id"`
	Name      string      `gorm:"size:100;not null" json:"name"`
	Sku       string      `gorm:"size:100;index" json:"sku"`
	Type      ProductType `gorm:"type:enum('S','C','R','M');default:S" json:"type"`
	IsActive  *bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name string      `json:"name" validate:"required"`
	Sku  string      `json:"sku"`
	Type ProductType `json:"type" validate:"required,oneof=S C R M"`
}

func (input *NewProduct) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Sku != "" {
		if err := utils.ValidateUnique[Product](ctx, "sku", input.Sku, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	product := Product{
		Name:     input.Name,
		Sku:      input.Sku,
		Type:     input.Type,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// may return RecordNotFound
func GetProduct(ctx context.Context, id int) (*Product, error) {
	cached, err := utils.RetrieveRedis[Product](id)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[Product](product, id); err != nil {
		return nil, err
	}
	return product, nil
}

// validateProductType checks existence, active state, and that the product
// carries the expected classification.
// (may return RecordNotFound / ErrInvalidProductType)
func validateProductType(ctx context.Context, id int, expected ProductType) (*Product, error) {
	product, err := GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.Type != expected {
		return nil, ErrInvalidProductType
	}
	if !utils.DereferencePtr(product.IsActive) {
		return nil, fmt.Errorf("%w: product %d is inactive", ErrInvalidInput, id)
	}
	return product, nil
}
