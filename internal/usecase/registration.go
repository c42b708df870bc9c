package usecase

import (
	"context"
	"crypto/rand"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// RegisterResult reports the new account. Warning is set when the account was
// created but the verification email could not be issued.
type RegisterResult struct {
	AccountID string `json:"account_id"`
	Warning   error  `json:"-"`
}

// Register creates an unverified account and sends a verification link.
// Delivery failures never undo the account; they come back as a warning.
func (u *AuthUsecase) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}

	hash, salt, err := u.hasher.Hash(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	account := &domain.Account{
		ID:           uuid.NewString(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		PasswordSalt: salt,
		CreatedAt:    u.now().UTC(),
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := u.accounts.Insert(ctx, account)
	if err != nil {
		return nil, u.storeErr("create account", err)
	}

	u.audit(ctx, id, domain.EventRegistered, nil)
	u.logger.InfoContext(ctx, "account registered", slog.String("account_id", id))

	result := &RegisterResult{AccountID: id}
	result.Warning = u.sendOneTimeToken(ctx, domain.PurposeEmailVerification, account.Email,
		u.opts.VerificationTokenTTL, u.notifier.SendVerificationLink)
	return result, nil
}

// VerifyEmail redeems a verification token. The token is consumed before the
// account is touched, so a second redemption fails with ErrInvalidToken.
func (u *AuthUsecase) VerifyEmail(ctx context.Context, email, token string) error {
	email = domain.NormalizeEmail(email)
	if email == "" || token == "" {
		return domain.ErrInvalidToken
	}

	account, err := u.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrInvalidToken
		}
		return u.storeErr("load account", err)
	}

	ok, err := u.tokens.Consume(ctx, domain.PurposeEmailVerification, email, security.Digest(token))
	if err != nil {
		return domain.DependencyError("redeem verification token", err)
	}
	if !ok {
		return domain.ErrInvalidToken
	}

	_, err = u.mutate(ctx, account.ID, func(a *domain.Account) error {
		a.EmailVerified = true
		return nil
	})
	if err != nil {
		return err
	}

	u.audit(ctx, account.ID, domain.EventEmailVerified, nil)
	u.logger.InfoContext(ctx, "email verified", slog.String("account_id", account.ID))
	return nil
}

// ResendVerification issues a fresh verification link for an unverified
// account. Unknown and already verified emails get the same nil result.
func (u *AuthUsecase) ResendVerification(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.NewError(domain.KindValidation, "email is required")
	}

	account, err := u.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil
		}
		return u.storeErr("load account", err)
	}
	if account.EmailVerified {
		return nil
	}

	// Failures are already logged; the caller sees the same outcome either way.
	_ = u.sendOneTimeToken(ctx, domain.PurposeEmailVerification, account.Email,
		u.opts.VerificationTokenTTL, u.notifier.SendVerificationLink)
	return nil
}

// sendOneTimeToken stores the digest of a fresh token for email and hands
// the plain token to send. Any failure is logged and returned as a
// DependencyError for the caller to treat as a warning.
func (u *AuthUsecase) sendOneTimeToken(
	ctx context.Context,
	purpose domain.TokenPurpose,
	email string,
	ttl time.Duration,
	send func(ctx context.Context, email, token string) error,
) error {
	token, err := security.RandomToken(rand.Reader)
	if err != nil {
		return u.notifyFailed(ctx, purpose, "generate token", err)
	}
	if err := u.tokens.Store(ctx, purpose, email, security.Digest(token), ttl); err != nil {
		return u.notifyFailed(ctx, purpose, "store token", err)
	}
	if err := send(ctx, email, token); err != nil {
		return u.notifyFailed(ctx, purpose, "send notification", err)
	}
	return nil
}

func (u *AuthUsecase) notifyFailed(ctx context.Context, purpose domain.TokenPurpose, op string, err error) error {
	u.logger.ErrorContext(ctx, "one-time token delivery failed",
		slog.String("purpose", string(purpose)),
		slog.String("op", op),
		slog.Any("error", err),
	)
	return domain.DependencyError(op, err)
}
