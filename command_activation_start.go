package guard

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type StartActivationMessage struct {
	Email      string `json:"email" doc:"Email of the account to activate."`
	OnResponse func(resp *StartActivationResponse)
}

func (p StartActivationMessage) Type() string { return "user.activation.start" }

type StartActivationResponse struct {
	Username string
	Token    string
	Success  bool
}

// StartActivationHandler issues a fresh activation token for a registered
// account, revoking any previously active one first.
type StartActivationHandler struct {
	repo     RepositoryManager
	tokens   *TokenStore
	notifier Notifier
	activity ActivitySink
	logger   Logger
}

func NewStartActivationHandler(repo RepositoryManager, tokens *TokenStore, notifier Notifier) *StartActivationHandler {
	return &StartActivationHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit workflow events.
func (h *StartActivationHandler) WithActivitySink(sink ActivitySink) *StartActivationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *StartActivationHandler) WithLogger(logger Logger) *StartActivationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *StartActivationHandler) Execute(ctx context.Context, event StartActivationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation start",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *StartActivationHandler) execute(ctx context.Context, event StartActivationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for activation")
	}

	if err := EnsureAccountUsable(user); err != nil {
		return err
	}

	var token string
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.tokens.RevokeExistingTokensTx(ctx, tx, user.Username); err != nil {
			return err
		}

		token, err = h.tokens.CreateTokenTx(ctx, tx, user.Username)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to start activation")
	}

	if h.notifier != nil {
		if err := h.notifier.SendActivationMessage(ctx, user.Email, user.Username, token); err != nil {
			h.logger.Warn("activation message delivery failed for %s: %v", user.Username, err)
		}
	}

	h.recordActivity(ctx, user.Username)

	if event.OnResponse != nil {
		event.OnResponse(&StartActivationResponse{
			Username: user.Username,
			Token:    token,
			Success:  true,
		})
	}

	return nil
}

func (h *StartActivationHandler) recordActivity(ctx context.Context, username string) {
	event := ActivityEvent{
		EventType:  ActivityEventActivationStarted,
		Actor:      ActorRef{ID: username, Type: "user"},
		Username:   username,
		Success:    true,
		Metadata:   map[string]any{"scope": h.tokens.Scope()},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during activation start: %v", err)
	}
}
