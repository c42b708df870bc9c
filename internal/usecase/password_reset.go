package usecase

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// RequestPasswordReset sends a reset link when the email belongs to an
// account. The result is the same whether or not it does; token and delivery
// failures are only logged for the same reason.
func (u *AuthUsecase) RequestPasswordReset(ctx context.Context, email string) error {
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

	_ = u.sendOneTimeToken(ctx, domain.PurposePasswordReset, account.Email,
		u.opts.ResetTokenTTL, u.notifier.SendPasswordResetLink)
	return nil
}

// ResetPassword redeems a reset token and replaces the password. The stored
// refresh token is dropped in the same write so every device has to log in
// again.
func (u *AuthUsecase) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	req.Email = domain.NormalizeEmail(req.Email)
	if err := ValidateStruct(req); err != nil {
		return err
	}
	email := req.Email

	account, err := u.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrInvalidToken
		}
		return u.storeErr("load account", err)
	}

	ok, err := u.tokens.Consume(ctx, domain.PurposePasswordReset, email, security.Digest(req.Token))
	if err != nil {
		return domain.DependencyError("redeem reset token", err)
	}
	if !ok {
		return domain.ErrInvalidToken
	}

	hash, salt, err := u.hasher.Hash(req.NewPassword)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}

	_, err = u.mutate(ctx, account.ID, func(a *domain.Account) error {
		a.PasswordHash = hash
		a.PasswordSalt = salt
		a.ClearRefreshToken()
		return nil
	})
	if err != nil {
		return err
	}

	u.audit(ctx, account.ID, domain.EventPasswordReset, nil)
	u.logger.InfoContext(ctx, "password reset", slog.String("account_id", account.ID))
	return nil
}
