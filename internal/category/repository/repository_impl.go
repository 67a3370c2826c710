package repository

import (
	"context"

	"github.com/smallbiznis/marketplace/internal/category/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, c *domain.Category) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO categories (id, kind, name, slug, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID,
		c.Kind,
		c.Name,
		c.Slug,
		c.CreatedAt,
	).Error
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, kind domain.Kind, slug string) (*domain.Category, error) {
	var c domain.Category
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, name, slug, created_at FROM categories WHERE kind = ? AND slug = ?`,
		kind,
		slug,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, kind domain.Kind) ([]domain.Category, error) {
	var items []domain.Category
	err := db.WithContext(ctx).Raw(
		`SELECT id, kind, name, slug, created_at FROM categories WHERE kind = ? ORDER BY name ASC`,
		kind,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
