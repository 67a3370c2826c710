package domain

import (
	"context"
	"errors"
)

type Service interface {
	// Resolve returns the canonical names for names, creating missing
	// categories. Blank and duplicate names are dropped; order is preserved.
	Resolve(ctx context.Context, kind Kind, names []string) ([]string, error)
	List(ctx context.Context, kind Kind) ([]Response, error)
}

type Response struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

var (
	ErrInvalidKind = errors.New("invalid_kind")
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindCategory, KindSpecialty:
		return Kind(raw), nil
	default:
		return "", ErrInvalidKind
	}
}
