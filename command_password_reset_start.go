package guard

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type StartPasswordResetMessage struct {
	Email      string `json:"email" doc:"Email of the account to recover."`
	OnResponse func(resp *StartPasswordResetResponse)
}

func (p StartPasswordResetMessage) Type() string { return "user.password_reset.start" }

type StartPasswordResetResponse struct {
	Username string
	Token    string
	Success  bool
}

// StartPasswordResetHandler begins the recovery flow: it authorizes the
// account, revokes any previously active reset token and issues a fresh one
// inside a single transaction, then hands the token to the notifier.
type StartPasswordResetHandler struct {
	repo     RepositoryManager
	tokens   *TokenStore
	notifier Notifier
	activity ActivitySink
	logger   Logger
}

func NewStartPasswordResetHandler(repo RepositoryManager, tokens *TokenStore, notifier Notifier) *StartPasswordResetHandler {
	return &StartPasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit workflow events.
func (h *StartPasswordResetHandler) WithActivitySink(sink ActivitySink) *StartPasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *StartPasswordResetHandler) WithLogger(logger Logger) *StartPasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *StartPasswordResetHandler) Execute(ctx context.Context, event StartPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset start",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *StartPasswordResetHandler) execute(ctx context.Context, event StartPasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrUserNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	if err := EnsureAccountUsable(user); err != nil {
		return err
	}

	var token string
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// revoke-then-create keeps at most one active token per user+scope
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to start password reset")
	}

	if h.notifier != nil {
		if err := h.notifier.SendRecoveryMessage(ctx, user.Email, user.Username, token); err != nil {
			// delivery failures stay out of the response so token enumeration
			// cannot be inferred from error shapes
			h.logger.Warn("recovery message delivery failed for %s: %v", user.Username, err)
		}
	}

	h.recordActivity(ctx, ActivityEventPasswordResetStarted, user.Username)

	if event.OnResponse != nil {
		event.OnResponse(&StartPasswordResetResponse{
			Username: user.Username,
			Token:    token,
			Success:  true,
		})
	}

	return nil
}

func (h *StartPasswordResetHandler) recordActivity(ctx context.Context, eventType ActivityEventType, username string) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: username, Type: "user"},
		Username:   username,
		Success:    true,
		Metadata:   map[string]any{"scope": h.tokens.Scope()},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset start: %v", err)
	}
}
