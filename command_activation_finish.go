package guard

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type FinishActivationMessage struct {
	Token    string `json:"token" doc:"Single use activation token."`
	Password string `json:"password" doc:"Initial password for the account."`
}

func (p FinishActivationMessage) Type() string { return "user.activation.finish" }

// FinishActivationHandler completes account activation: it validates the
// token, re-authorizes the account, sets the initial password and consumes
// the token in one transaction.
type FinishActivationHandler struct {
	repo     RepositoryManager
	tokens   *TokenStore
	hasher   PasswordHasher
	activity ActivitySink
	logger   Logger
}

func NewFinishActivationHandler(repo RepositoryManager, tokens *TokenStore) *FinishActivationHandler {
	return &FinishActivationHandler{
		repo:     repo,
		tokens:   tokens,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithPasswordHasher overrides the hasher applied to the new password.
func (h *FinishActivationHandler) WithPasswordHasher(hasher PasswordHasher) *FinishActivationHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithActivitySink sets the sink used to emit workflow events.
func (h *FinishActivationHandler) WithActivitySink(sink ActivitySink) *FinishActivationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinishActivationHandler) WithLogger(logger Logger) *FinishActivationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinishActivationHandler) Execute(ctx context.Context, event FinishActivationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation finish",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinishActivationHandler) execute(ctx context.Context, event FinishActivationMessage) error {
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for activation")
	}

	if err := EnsureAccountUsable(user); err != nil {
		return err
	}

	passwordHash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.Users().ResetPasswordTx(ctx, tx, user.ID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set account password")
		}

		return h.tokens.ConsumeTokenTx(ctx, tx, event.Token)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finish activation")
	}

	h.recordActivity(ctx, user.Username)

	return nil
}

func (h *FinishActivationHandler) recordActivity(ctx context.Context, username string) {
	event := ActivityEvent{
		EventType:  ActivityEventActivationSuccess,
		Actor:      ActorRef{ID: username, Type: "user"},
		Username:   username,
		Success:    true,
		Metadata:   map[string]any{"scope": h.tokens.Scope()},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during activation finish: %v", err)
	}
}
