package domain

import (
	"time"

	filestoredomain "github.com/smallbiznis/marketplace/internal/filestore/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// FileRefs is a JSON column of references issued by the file store.
type FileRefs = datatypes.JSONSlice[filestoredomain.FileReference]

// Names is a JSON column of canonical category or specialty names.
type Names = datatypes.JSONSlice[string]

type Product struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	Name            string    `json:"name" gorm:"type:text;not null"`
	Description     *string   `json:"description,omitempty" gorm:"type:text"`
	Price           float64   `json:"price" gorm:"not null"`
	Country         *string   `json:"country,omitempty" gorm:"type:text"`
	Uploader        string    `json:"uploader" gorm:"column:uploader_username;type:text;not null;index"`
	Status          Status    `json:"status" gorm:"type:text;not null;index"`
	DecidedBy       *string   `json:"decided_by,omitempty" gorm:"type:text"`
	DecisionComment *string   `json:"decision_comment,omitempty" gorm:"type:text"`
	Categories      Names     `json:"categories" gorm:"type:json"`
	Specialties     Names     `json:"specialties" gorm:"type:json"`
	PrimaryImages   FileRefs  `json:"primary_images" gorm:"type:json"`
	AuthorizedFiles FileRefs  `json:"authorized_files" gorm:"type:json"`
	CreatedAt       time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// AllFiles returns every attached reference, primary images first.
func (p *Product) AllFiles() []filestoredomain.FileReference {
	out := make([]filestoredomain.FileReference, 0, len(p.PrimaryImages)+len(p.AuthorizedFiles))
	out = append(out, p.PrimaryImages...)
	out = append(out, p.AuthorizedFiles...)
	return out
}

// Normalize replaces nil JSON columns with empty lists so they persist as [].
func (p *Product) Normalize() {
	if p.Categories == nil {
		p.Categories = Names{}
	}
	if p.Specialties == nil {
		p.Specialties = Names{}
	}
	if p.PrimaryImages == nil {
		p.PrimaryImages = FileRefs{}
	}
	if p.AuthorizedFiles == nil {
		p.AuthorizedFiles = FileRefs{}
	}
}
