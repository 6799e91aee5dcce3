package guard

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	UseHashid bool
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates a new account in the pending-activation shape:
// enabled, random password hash, credentials marked expired until the
// activation flow sets the real password.
type RegisterUserHandler struct {
	repo   RepositoryManager
	tokens *TokenStore
}

func NewRegisterUserHandler(repo RepositoryManager, activationTokens *TokenStore) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:   repo,
		tokens: activationTokens,
	}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user.PasswordHash = RandomPasswordHash()
		user.Email = event.Email
		user.Name = event.Name
		user.Username = deriveUsername(event.Username, event.Email)
		user.Enabled = true
		user.NotExpired = true
		user.NotLocked = true
		user.PasswordNotExpired = false
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		var err error
		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryValidation {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		if event.Role != "" {
			role, err := h.repo.Roles().GetByNameTx(ctx, tx, event.Role)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryBadInput, "unknown role for new user").
					WithMetadata(map[string]any{"role": event.Role})
			}
			if err := h.repo.Users().AssignRoleTx(ctx, tx, user.ID, role.ID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not assign role to user")
			}
		}

		if h.tokens != nil {
			if _, err := h.tokens.CreateTokenTx(ctx, tx, user.Username); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	return nil
}

func deriveUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
