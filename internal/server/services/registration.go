package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"github.com/google/uuid"
)

const confirmationSubject = "Confirm account"

// ApplyRequest is a new registration.
type ApplyRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Registration drives a registration from apply to a confirmed account, and
// the re-verification of an existing account's email.
type Registration struct {
	accounts *AccountStore
	pending  *PendingStore
	sessions *Sessions
	hasher   cryptox.PasswordHasher
	notifier notify.Notifier
	clock    timex.Clock
	codeTTL  time.Duration
	logger   logging.Logger
}

func NewRegistration(
	accounts *AccountStore,
	pending *PendingStore,
	sessions *Sessions,
	hasher cryptox.PasswordHasher,
	notifier notify.Notifier,
	clock timex.Clock,
	codeTTL time.Duration,
	logger logging.Logger,
) *Registration {
	return &Registration{
		accounts: accounts,
		pending:  pending,
		sessions: sessions,
		hasher:   hasher,
		notifier: notifier,
		clock:    clock,
		codeTTL:  codeTTL,
		logger:   logger.With("module", "registration"),
	}
}

// Apply stores a pending registration with a fresh code and mails the code.
// It fails with common.ErrorConflict when the email already belongs to an
// account. The pending row is kept even if delivery fails; the caller then
// gets common.ErrNotificationFailed and may simply apply again.
func (r *Registration) Apply(ctx context.Context, req ApplyRequest) error {
	exists, err := r.accounts.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if exists {
		return common.ErrorConflict
	}

	code, err := common.GenerateDigitCode(common.ConfirmationCodeLength)
	if err != nil {
		return fmt.Errorf("confirmation code: %w", err)
	}

	err = r.pending.Replace(ctx, &models.UnconfirmedAccount{
		Email:                       req.Email,
		FirstName:                   req.FirstName,
		LastName:                    req.LastName,
		PasswordHash:                r.hasher.Hash(req.Password),
		ConfirmationCode:            code,
		ConfirmationCodeValidBefore: r.clock.Now().Add(r.codeTTL),
	})
	if err != nil {
		return err
	}

	return r.sendCode(ctx, req.Email, code)
}

// Confirm promotes the pending registration for email if code matches and
// has not expired, then issues the first session. A missing registration is
// common.ErrorNotFound, a wrong or stale code common.ErrCodeMismatch, and an
// account confirmed concurrently for the same email common.ErrorConflict.
func (r *Registration) Confirm(ctx context.Context, email, code string) (models.TokenPair, error) {
	p, err := r.pending.Get(ctx, email)
	if err != nil {
		return models.TokenPair{}, err
	}
	if !p.CodeMatches(code, r.clock.Now()) {
		return models.TokenPair{}, common.ErrCodeMismatch
	}

	a, err := r.accounts.Promote(ctx, p)
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			r.logger.Warn(ctx, "promotion lost a race", "email", email)
		}
		return models.TokenPair{}, err
	}

	r.logger.Info(ctx, "account confirmed", "account_id", a.ID)
	return r.sessions.Issue(ctx, a.Role, a.ID)
}

// RequestEmailChange mails a code to newEmail and stores it on the account.
// The change takes effect once ReVerify consumes the code.
func (r *Registration) RequestEmailChange(ctx context.Context, accountID uuid.UUID, newEmail string) error {
	a, err := r.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if newEmail != a.Email {
		exists, err := r.accounts.ExistsByEmail(ctx, newEmail)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrorConflict
		}
	}

	code, err := common.GenerateDigitCode(common.ConfirmationCodeLength)
	if err != nil {
		return fmt.Errorf("confirmation code: %w", err)
	}
	if err := r.accounts.SetConfirmationCode(ctx, accountID, newEmail, code, r.clock.Now().Add(r.codeTTL)); err != nil {
		return err
	}

	return r.sendCode(ctx, newEmail, code)
}

// ReVerify consumes the account's confirmation code, switching to email and
// marking it verified.
func (r *Registration) ReVerify(ctx context.Context, accountID uuid.UUID, email, code string) error {
	_, err := r.accounts.ConfirmEmail(ctx, accountID, email, code)
	return err
}

func (r *Registration) sendCode(ctx context.Context, email, code string) error {
	body := fmt.Sprintf("Confirmation code: %s\nThe code expires in %s.", code, r.codeTTL)
	if err := r.notifier.Send(ctx, email, confirmationSubject, body); err != nil {
		r.logger.Warn(ctx, "confirmation code not delivered", "email", email, "error", err)
		return common.ErrNotificationFailed
	}
	return nil
}
