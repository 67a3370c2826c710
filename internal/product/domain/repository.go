package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Product, int64, error)
	// Update writes every mutable column, but only while the stored status still
	// equals expected. It reports whether a row was written.
	Update(ctx context.Context, db *gorm.DB, product *Product, expected Status) (bool, error)
	UpdateFiles(ctx context.Context, db *gorm.DB, product *Product) error
	Delete(ctx context.Context, db *gorm.DB, id int64) error
}

type ListFilter struct {
	Status   Status
	Uploader string
	Offset   int
	Limit    int
}
