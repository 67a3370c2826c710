package repository

import (
	"context"

	"github.com/smallbiznis/marketplace/internal/product/domain"
	"gorm.io/gorm"
)

const productColumns = `id, name, description, price, country, uploader_username, status, decided_by,
	decision_comment, categories, specialties, primary_images, authorized_files, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	product.Normalize()
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (`+productColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Country,
		product.Uploader,
		product.Status,
		product.DecidedBy,
		product.DecisionComment,
		product.Categories,
		product.Specialties,
		product.PrimaryImages,
		product.AuthorizedFiles,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	p.Normalize()
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Product, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Product{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Uploader != "" {
		stmt = stmt.Where("LOWER(uploader_username) = LOWER(?)", filter.Uploader)
	}

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	stmt = stmt.Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit).Offset(filter.Offset)
	}

	var items []domain.Product
	if err := stmt.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Normalize()
	}
	return items, total, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, product *domain.Product, expected domain.Status) (bool, error) {
	product.Normalize()
	res := db.WithContext(ctx).Exec(
		`UPDATE products SET name = ?, description = ?, price = ?, country = ?, status = ?, decided_by = ?,
		 decision_comment = ?, categories = ?, specialties = ?, primary_images = ?, authorized_files = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		product.Name,
		product.Description,
		product.Price,
		product.Country,
		product.Status,
		product.DecidedBy,
		product.DecisionComment,
		product.Categories,
		product.Specialties,
		product.PrimaryImages,
		product.AuthorizedFiles,
		product.UpdatedAt,
		product.ID,
		expected,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateFiles(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	product.Normalize()
	return db.WithContext(ctx).Exec(
		`UPDATE products SET primary_images = ?, authorized_files = ?, updated_at = ? WHERE id = ?`,
		product.PrimaryImages,
		product.AuthorizedFiles,
		product.UpdatedAt,
		product.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Exec(`DELETE FROM products WHERE id = ?`, id).Error
}
