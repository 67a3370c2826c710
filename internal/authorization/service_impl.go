package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/marketplace/internal/actor"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectProduct  = "product"
	ObjectCategory = "category"
)

const (
	ActionProductCreate         = "product.create"
	ActionProductUpdate         = "product.update"
	ActionProductDelete         = "product.delete"
	ActionProductListOwn        = "product.list_own"
	ActionProductListByUploader = "product.list_by_uploader"
	ActionProductListPending    = "product.list_pending"
	ActionProductDecide         = "product.decide"

	ActionCategoryView = "category.view"
)

const (
	roleAdmin        = "role:admin"
	roleCollaborator = "role:collaborator"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, a actor.Actor, object string, action string) error {
	if !a.Valid() {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, ok := roleFor(a.Role)
	if !ok {
		s.log.Debug("authorization denied: unknown role",
			zap.String("actor", a.Username),
			zap.String("role", string(a.Role)),
			zap.String("action", action),
		)
		return ErrForbidden
	}

	subject := fmt.Sprintf("user:%s", strings.ToLower(strings.TrimSpace(a.Username)))
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("actor", a.Username),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject, following the role
// carried by the caller's token.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func roleFor(role actor.Role) (string, bool) {
	switch role {
	case actor.RoleAdmin:
		return roleAdmin, true
	case actor.RoleCollaborator:
		return roleCollaborator, true
	default:
		return "", false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Collaborators submit and maintain their own products.
		{roleCollaborator, ObjectProduct, ActionProductCreate},
		{roleCollaborator, ObjectProduct, ActionProductUpdate},
		{roleCollaborator, ObjectProduct, ActionProductDelete},
		{roleCollaborator, ObjectProduct, ActionProductListOwn},
		{roleCollaborator, ObjectProduct, ActionProductListByUploader},
		{roleCollaborator, ObjectCategory, ActionCategoryView},

		// Admins review.
		{roleAdmin, ObjectProduct, ActionProductListPending},
		{roleAdmin, ObjectProduct, ActionProductDecide},
		{roleAdmin, ObjectProduct, ActionProductListByUploader},
		{roleAdmin, ObjectCategory, ActionCategoryView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
