package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/utils"
	"github.com/shopspring/decimal"
)

// Recipe converts a manufactured virtual product into the raw-tracked
// material consumed to produce it. Read-only to the allocation engine.
type Recipe struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Name             string          `gorm:"size:100;not null" json:"name"`
	VirtualProductId int             `gorm:"uniqueIndex:idx_recipe_pair;not null" json:"virtual_product_id"`
	RawProductId     int             `gorm:"uniqueIndex:idx_recipe_pair;not null" json:"raw_product_id"`
	ConversionFactor decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"conversion_factor"`
	WastageMargin    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"wastage_margin"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRecipe struct {
	Name             string          `json:"name" validate:"required"`
	VirtualProductId int             `json:"virtual_product_id" validate:"required,gt=0"`
	RawProductId     int             `json:"raw_product_id" validate:"required,gt=0"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	WastageMargin    decimal.Decimal `json:"wastage_margin"`
}

var hundred = decimal.NewFromInt(100)

// RequiredRawQuantity returns the raw material needed to manufacture the
// requested virtual quantity: q * factor * (1 + wastage/100).
func (r *Recipe) RequiredRawQuantity(virtualQty decimal.Decimal) decimal.Decimal {
	margin := decimal.NewFromInt(1).Add(r.WastageMargin.Div(hundred))
	return virtualQty.Mul(r.ConversionFactor).Mul(margin)
}

func (input *NewRecipe) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.ConversionFactor.IsPositive() {
		return fmt.Errorf("%w: conversion factor must be positive", ErrInvalidInput)
	}
	if input.WastageMargin.IsNegative() || input.WastageMargin.GreaterThan(hundred) {
		return fmt.Errorf("%w: wastage margin must be between 0 and 100", ErrInvalidInput)
	}
	if _, err := validateProductType(ctx, input.VirtualProductId, ProductTypeManufacturedVirtual); err != nil {
		return err
	}
	if _, err := validateProductType(ctx, input.RawProductId, ProductTypeRawTracked); err != nil {
		return err
	}

	// at most one recipe per (virtual, raw) pair
	var count int64
	var err error
	if id == 0 {
		count, err = utils.ResourceCountWhere[Recipe](ctx, "virtual_product_id = ? AND raw_product_id = ?",
			input.VirtualProductId, input.RawProductId)
	} else {
		count, err = utils.ResourceCountWhere[Recipe](ctx, "virtual_product_id = ? AND raw_product_id = ? AND NOT id = ?",
			input.VirtualProductId, input.RawProductId, id)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateRecipe
	}
	return nil
}

func CreateRecipe(ctx context.Context, input *NewRecipe) (*Recipe, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	recipe := Recipe{
		Name:             input.Name,
		VirtualProductId: input.VirtualProductId,
		RawProductId:     input.RawProductId,
		ConversionFactor: input.ConversionFactor,
		WastageMargin:    input.WastageMargin,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&recipe).Error; err != nil {
		// the unique index closes the validate/create race
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateRecipe
		}
		return nil, err
	}
	if err := clearRecipeCache(recipe.VirtualProductId); err != nil {
		return nil, err
	}
	return &recipe, nil
}

func UpdateRecipe(ctx context.Context, id int, input *NewRecipe) (*Recipe, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	recipe, err := utils.FetchModel[Recipe](ctx, id)
	if err != nil {
		return nil, err
	}
	oldVirtualId := recipe.VirtualProductId

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&recipe).Updates(map[string]interface{}{
		"Name":             input.Name,
		"VirtualProductId": input.VirtualProductId,
		"RawProductId":     input.RawProductId,
		"ConversionFactor": input.ConversionFactor,
		"WastageMargin":    input.WastageMargin,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := clearRecipeCache(oldVirtualId); err != nil {
		return nil, err
	}
	if oldVirtualId != input.VirtualProductId {
		if err := clearRecipeCache(input.VirtualProductId); err != nil {
			return nil, err
		}
	}
	return recipe, nil
}

func DeleteRecipe(ctx context.Context, id int) (*Recipe, error) {

	recipe, err := utils.FetchModel[Recipe](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&recipe).Error; err != nil {
		return nil, err
	}
	if err := clearRecipeCache(recipe.VirtualProductId); err != nil {
		return nil, err
	}
	return recipe, nil
}

// GetRecipeForVirtualProduct resolves the conversion rule for a manufactured
// virtual product. Cached; invalidated on every recipe mutation.
// (may return RecordNotFound)
func GetRecipeForVirtualProduct(ctx context.Context, virtualProductId int) (*Recipe, error) {

	var cached *Recipe
	exists, err := config.GetRedisObject(recipeCacheKey(virtualProductId), &cached)
	if err != nil {
		return nil, err
	}
	if exists && cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var recipe Recipe
	if err := db.WithContext(ctx).
		Where("virtual_product_id = ?", virtualProductId).
		First(&recipe).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	if err := config.SetRedisObject(recipeCacheKey(virtualProductId), &recipe, utils.GetCacheLifespan()); err != nil {
		return nil, err
	}
	return &recipe, nil
}

func recipeCacheKey(virtualProductId int) string {
	return "RecipeForVirtual:" + fmt.Sprint(virtualProductId)
}

func clearRecipeCache(virtualProductId int) error {
	return config.RemoveRedisKey(recipeCacheKey(virtualProductId))
}
