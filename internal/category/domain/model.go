package domain

import "time"

type Kind string

const (
	KindCategory  Kind = "category"
	KindSpecialty Kind = "specialty"
)

// Category is a named tag shared across products. Slug is the case- and
// accent-insensitive key used for lookup.
type Category struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Kind      Kind      `json:"kind" gorm:"type:text;not null;index:ux_categories_kind_slug,unique,priority:1"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Slug      string    `json:"slug" gorm:"type:text;not null;index:ux_categories_kind_slug,unique,priority:2"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Category) TableName() string { return "categories" }
