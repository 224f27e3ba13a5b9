package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/utils"
)

type Branch struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	City      string    `gorm:"size:100" json:"city"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBranch struct {
	Name string `json:"name" validate:"required"`
	City string `json:"city"`
}

func (input *NewBranch) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	return utils.ValidateUnique[Branch](ctx, "name", input.Name, id)
}

func CreateBranch(ctx context.Context, input *NewBranch) (*Branch, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	branch := Branch{
		Name:     input.Name,
		City:     input.City,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&branch).Error
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

// may return RecordNotFound
func GetBranch(ctx context.Context, id int) (*Branch, error) {
	// read-mostly, cached
	cached, err := utils.RetrieveRedis[Branch](id)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	branch, err := utils.FetchModel[Branch](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[Branch](branch, id); err != nil {
		return nil, err
	}
	return branch, nil
}
