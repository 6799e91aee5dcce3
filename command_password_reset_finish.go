package guard

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type FinishPasswordResetMessage struct {
	Token    string `json:"token" doc:"Single use reset token."`
	Password string `json:"password" doc:"New password."`
}

func (p FinishPasswordResetMessage) Type() string { return "user.password_reset.finish" }

// FinishPasswordResetHandler completes the recovery flow. Every precondition
// (token validity, account authorization) is checked before the password is
// touched; the update and the token consumption commit together or not at all.
type FinishPasswordResetHandler struct {
	repo     RepositoryManager
	tokens   *TokenStore
	hasher   PasswordHasher
	activity ActivitySink
	logger   Logger
}

func NewFinishPasswordResetHandler(repo RepositoryManager, tokens *TokenStore) *FinishPasswordResetHandler {
	return &FinishPasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithPasswordHasher overrides the hasher applied to the new password.
func (h *FinishPasswordResetHandler) WithPasswordHasher(hasher PasswordHasher) *FinishPasswordResetHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithActivitySink sets the sink used to emit workflow events.
func (h *FinishPasswordResetHandler) WithActivitySink(sink ActivitySink) *FinishPasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinishPasswordResetHandler) WithLogger(logger Logger) *FinishPasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinishPasswordResetHandler) Execute(ctx context.Context, event FinishPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finish",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinishPasswordResetHandler) execute(ctx context.Context, event FinishPasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := ValidatePasswordInput(event.Password); err != nil {
		return err
	}

	if err := h.tokens.Validate(ctx, event.Token); err != nil {
		return err
	}

	username, err := h.tokens.GetUsername(ctx, event.Token)
	if err != nil {
		return err
	}

	user, err := h.repo.Users().GetByUsername(ctx, username)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	if err := EnsureAccountUsable(user); err != nil {
		return err
	}

	passwordHash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.Users().ResetPasswordTx(ctx, tx, user.ID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password")
		}

		return h.tokens.ConsumeTokenTx(ctx, tx, event.Token)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finish password reset")
	}

	h.recordActivity(ctx, user.Username)

	return nil
}

func (h *FinishPasswordResetHandler) recordActivity(ctx context.Context, username string) {
	event := ActivityEvent{
		EventType:  ActivityEventPasswordResetSuccess,
		Actor:      ActorRef{ID: username, Type: "user"},
		Username:   username,
		Success:    true,
		Metadata:   map[string]any{"scope": h.tokens.Scope()},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset finish: %v", err)
	}
}
