package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/marketplace/internal/category/domain"
	"github.com/smallbiznis/marketplace/internal/category/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) domain.Service {
	t.Helper()
	dsn := fmt.Sprintf("file:category_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Category{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide()})
}

func TestResolve_CreatesAndReuses(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	names, err := svc.Resolve(ctx, domain.KindCategory, []string{"Estructuras", " ", "Acústica"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Estructuras", "Acústica"}, names)

	names, err = svc.Resolve(ctx, domain.KindCategory, []string{"ESTRUCTURAS", "acustica", "estructuras"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Estructuras", "Acústica"}, names)

	list, err := svc.List(ctx, domain.KindCategory)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestResolve_KindsAreSeparate(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, domain.KindCategory, []string{"BIM"})
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, domain.KindSpecialty, []string{"bim"})
	require.NoError(t, err)

	specialties, err := svc.List(ctx, domain.KindSpecialty)
	require.NoError(t, err)
	require.Len(t, specialties, 1)
	assert.Equal(t, "bim", specialties[0].Name)
}

func TestResolve_InvalidKind(t *testing.T) {
	svc := setupService(t)
	_, err := svc.Resolve(context.Background(), domain.Kind("tag"), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}
