package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, c *Category) error
	FindBySlug(ctx context.Context, db *gorm.DB, kind Kind, slug string) (*Category, error)
	List(ctx context.Context, db *gorm.DB, kind Kind) ([]Category, error)
}
