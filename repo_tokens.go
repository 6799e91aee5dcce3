package guard

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserTokens persists scoped single use token rows. Only the TokenStore
// drives these methods.
type UserTokens interface {
	repository.Repository[*UserToken]

	GetByToken(ctx context.Context, token string) (*UserToken, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*UserToken, error)

	RevokeActive(ctx context.Context, username, scope string) (int64, error)
	RevokeActiveTx(ctx context.Context, tx bun.IDB, username, scope string) (int64, error)

	MarkConsumed(ctx context.Context, id uuid.UUID) error
	MarkConsumedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	PurgeTerminated(ctx context.Context, now time.Time) (int64, error)
}

type userTokens struct {
	repository.Repository[*UserToken]
	db *bun.DB
}

var _ UserTokens = (*userTokens)(nil)

func NewUserTokensRepository(db *bun.DB) UserTokens {
	repo := repository.NewRepository[*UserToken](db, repository.ModelHandlers[*UserToken]{
		NewRecord: func() *UserToken { return &UserToken{} },
		GetID: func(t *UserToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *UserToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &userTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *userTokens) GetByToken(ctx context.Context, token string) (*UserToken, error) {
	return r.GetByTokenTx(ctx, r.db, token)
}

func (r *userTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*UserToken, error) {
	record := &UserToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"token": token})
		}
		return nil, err
	}

	return record, nil
}

func (r *userTokens) RevokeActive(ctx context.Context, username, scope string) (int64, error) {
	return r.RevokeActiveTx(ctx, r.db, username, scope)
}

// RevokeActiveTx marks every non terminal token for username+scope as revoked.
// Rows already consumed or revoked stay untouched.
func (r *userTokens) RevokeActiveTx(ctx context.Context, tx bun.IDB, username, scope string) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*UserToken)(nil)).
		Set("revoked = TRUE").
		Where("LOWER(username) = ?", NormalizeUsername(username)).
		Where("scope = ?", scope).
		Where("consumed = FALSE").
		Where("revoked = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *userTokens) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	return r.MarkConsumedTx(ctx, r.db, id)
}

func (r *userTokens) MarkConsumedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*UserToken)(nil)).
		Set("consumed = TRUE").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// PurgeTerminated removes consumed, revoked and expired rows across all
// scopes. Maintenance only, never called from the validation path.
func (r *userTokens) PurgeTerminated(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*UserToken)(nil)).
		Where("consumed = TRUE").
		WhereOr("revoked = TRUE").
		WhereOr("expiration_date <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
