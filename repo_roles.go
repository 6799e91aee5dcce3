package guard

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles manages role records and their permission grants.
type Roles interface {
	repository.Repository[*Role]

	GetByName(ctx context.Context, name string) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)

	GrantPermission(ctx context.Context, roleID uuid.UUID, permissionName string) error
	GrantPermissionTx(ctx context.Context, tx bun.IDB, roleID uuid.UUID, permissionName string) error
	RevokePermission(ctx context.Context, roleID uuid.UUID, permissionName string) error

	RolesForUser(ctx context.Context, username string) ([]*Role, error)
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &roles{
		Repository: repo,
		db:         db,
	}
}

func (r *roles) GetByName(ctx context.Context, name string) (*Role, error) {
	return r.GetByNameTx(ctx, r.db, name)
}

func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"name": name})
		}
		return nil, err
	}

	return record, nil
}

func (r *roles) GrantPermission(ctx context.Context, roleID uuid.UUID, permissionName string) error {
	return r.GrantPermissionTx(ctx, r.db, roleID, permissionName)
}

// GrantPermissionTx upserts the role-permission link with granted=true. A role
// never holds duplicate permission names; the composite pk enforces that.
func (r *roles) GrantPermissionTx(ctx context.Context, tx bun.IDB, roleID uuid.UUID, permissionName string) error {
	link := &RolePermission{
		RoleID:         roleID,
		PermissionName: permissionName,
		Granted:        true,
	}
	_, err := tx.NewInsert().
		Model(link).
		On("CONFLICT (role_id, permission_name) DO UPDATE").
		Set("granted = EXCLUDED.granted").
		Exec(ctx)
	return err
}

// RevokePermission flips the link's granted flag off. A granted=false link
// behaves exactly like an absent one during aggregation.
func (r *roles) RevokePermission(ctx context.Context, roleID uuid.UUID, permissionName string) error {
	_, err := r.db.NewUpdate().
		Model((*RolePermission)(nil)).
		Set("granted = FALSE").
		Where("role_id = ?", roleID).
		Where("permission_name = ?", permissionName).
		Exec(ctx)
	return err
}

func (r *roles) RolesForUser(ctx context.Context, username string) ([]*Role, error) {
	var records []*Role
	err := r.db.NewSelect().
		Model(&records).
		Join(`JOIN user_roles AS ur ON ur.role_id = ?TableAlias.id`).
		Join(`JOIN users AS usr ON usr.id = ur.user_id`).
		Where("LOWER(usr.username) = ?", NormalizeUsername(username)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}
