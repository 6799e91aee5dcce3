package guard

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Roles() Roles
	UserTokens() UserTokens
	Actions() repository.Repository[*Action]
	Resources() repository.Repository[*Resource]
	Permissions() repository.Repository[*ResourcePermission]
}

type mngr struct {
	db          *bun.DB
	users       Users
	roles       Roles
	userTokens  UserTokens
	actions     repository.Repository[*Action]
	resources   repository.Repository[*Resource]
	permissions repository.Repository[*ResourcePermission]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		users:       NewUsersRepository(db),
		roles:       NewRolesRepository(db),
		userTokens:  NewUserTokensRepository(db),
		actions:     NewActionsRepository(db),
		resources:   NewResourcesRepository(db),
		permissions: NewResourcePermissionsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.userTokens == nil {
		return errors.New("repository userTokens should be initialized")
	}

	if m.actions == nil || m.resources == nil || m.permissions == nil {
		return errors.New("catalog repositories should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users { return m.users }

func (m mngr) Roles() Roles { return m.roles }

func (m mngr) UserTokens() UserTokens { return m.userTokens }

func (m mngr) Actions() repository.Repository[*Action] { return m.actions }

func (m mngr) Resources() repository.Repository[*Resource] { return m.resources }

func (m mngr) Permissions() repository.Repository[*ResourcePermission] { return m.permissions }
