package guard

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Catalog verbs. Every (action, resource) pair in the catalog becomes a
// ResourcePermission named "ACTION:RESOURCE".
const (
	ActionCreate = "CREATE"
	ActionRead   = "READ"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionView   = "VIEW"
)

// DefaultActions returns the canonical verb set in declaration order.
func DefaultActions() []string {
	return []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionView}
}

// PermissionSource declares catalog content. Seeding is idempotent so
// multiple sources and repeated startups are safe.
type PermissionSource interface {
	Actions() []string
	Resources() []string
	// RoleGrants maps role name to granted permission names. The wildcard
	// "*" grants every permission in the catalog.
	RoleGrants() map[string][]string
}

// StaticPermissionSource is a declarative PermissionSource literal.
type StaticPermissionSource struct {
	ActionNames   []string
	ResourceNames []string
	Grants        map[string][]string
}

func (s StaticPermissionSource) Actions() []string             { return s.ActionNames }
func (s StaticPermissionSource) Resources() []string           { return s.ResourceNames }
func (s StaticPermissionSource) RoleGrants() map[string][]string { return s.Grants }

var _ PermissionSource = StaticPermissionSource{}

// SeedCatalog loads actions, resources, their cross product and role grants
// from the given sources inside a single transaction. Existing catalog rows
// are left alone; declared role grants are re-asserted, so the sources stay
// authoritative across restarts. The operation can run on every startup.
func SeedCatalog(ctx context.Context, repo RepositoryManager, sources ...PermissionSource) error {
	if len(sources) == 0 {
		return nil
	}

	return repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, source := range sources {
			if source == nil {
				continue
			}
			if err := seedSource(ctx, tx, repo.Roles(), source); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedSource(ctx context.Context, tx bun.Tx, roles Roles, source PermissionSource) error {
	actions := upperNames(source.Actions())
	resources := upperNames(source.Resources())

	for _, name := range actions {
		if _, err := tx.NewInsert().
			Model(&Action{ID: uuid.New(), Name: name}).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to seed action").
				WithMetadata(map[string]any{"action": name})
		}
	}

	for _, name := range resources {
		if _, err := tx.NewInsert().
			Model(&Resource{ID: uuid.New(), Name: name}).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to seed resource").
				WithMetadata(map[string]any{"resource": name})
		}
	}

	var permissionNames []string
	for _, resource := range resources {
		for _, action := range actions {
			name := PermissionName(action, resource)
			permissionNames = append(permissionNames, name)
			perm := &ResourcePermission{
				ID:       uuid.New(),
				Name:     name,
				Action:   action,
				Resource: resource,
			}
			if _, err := tx.NewInsert().
				Model(perm).
				On("CONFLICT (name) DO NOTHING").
				Exec(ctx); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to seed permission").
					WithMetadata(map[string]any{"permission": name})
			}
		}
	}

	for roleName, grants := range source.RoleGrants() {
		if _, err := tx.NewInsert().
			Model(&Role{ID: uuid.New(), Name: roleName}).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to seed role").
				WithMetadata(map[string]any{"role": roleName})
		}

		// the insert may have been a no-op, fetch the canonical row for its id
		role, err := roles.GetByNameTx(ctx, tx, roleName)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve seeded role").
				WithMetadata(map[string]any{"role": roleName})
		}

		names := grants
		if len(grants) == 1 && grants[0] == "*" {
			names = permissionNames
		}

		for _, permissionName := range names {
			if err := roles.GrantPermissionTx(ctx, tx, role.ID, strings.ToUpper(permissionName)); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to seed role grant").
					WithMetadata(map[string]any{"role": roleName, "permission": permissionName})
			}
		}
	}

	return nil
}

func upperNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
