package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/marketplace/internal/category/domain"
	"github.com/smallbiznis/marketplace/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("category.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Resolve(ctx context.Context, kind domain.Kind, names []string) ([]string, error) {
	if _, err := domain.ParseKind(string(kind)); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		key := slug.Make(name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		c, err := s.findOrCreate(ctx, kind, name, key)
		if err != nil {
			return nil, err
		}
		out = append(out, c.Name)
	}
	return out, nil
}

func (s *Service) findOrCreate(ctx context.Context, kind domain.Kind, name, key string) (*domain.Category, error) {
	existing, err := s.repo.FindBySlug(ctx, s.db, kind, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	c := &domain.Category{
		ID:        s.genID.Generate().Int64(),
		Kind:      kind,
		Name:      name,
		Slug:      key,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, s.db, c); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Lost a concurrent create; the winner's row is canonical.
		existing, err := s.repo.FindBySlug(ctx, s.db, kind, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		return nil, err
	}
	s.log.Info("category created", zap.String("kind", string(kind)), zap.String("name", name))
	return c, nil
}

func (s *Service) List(ctx context.Context, kind domain.Kind) ([]domain.Response, error) {
	if _, err := domain.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	items, err := s.repo.List(ctx, s.db, kind)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.Response{
			ID:   snowflake.ID(item.ID).String(),
			Kind: item.Kind,
			Name: item.Name,
			Slug: item.Slug,
		})
	}
	return resp, nil
}
