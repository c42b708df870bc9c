package usecase

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
)

var errTwoFactorAlreadyEnabled = domain.NewError(domain.KindValidation, "two-factor authentication is already enabled")

// SetupTwoFactor provisions a new TOTP secret for the account and leaves it
// pending until ConfirmTwoFactor. A previous pending secret is replaced.
func (u *AuthUsecase) SetupTwoFactor(ctx context.Context, accountID string) (*domain.TwoFactorSetup, error) {
	secret, err := u.totp.GenerateSecret()
	if err != nil {
		return nil, errors.Wrap(err, "generate totp secret")
	}

	account, err := u.mutate(ctx, accountID, func(a *domain.Account) error {
		if a.TwoFactorEnabled {
			return errTwoFactorAlreadyEnabled
		}
		a.TwoFactorSecret = secret
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}

	uri := u.totp.ProvisioningURI(u.opts.TOTPIssuer, account.Email, secret)
	png, err := u.totp.QRCode(uri)
	if err != nil {
		// The URI alone is enough to enrol.
		u.logger.WarnContext(ctx, "qr code rendering failed", slog.Any("error", err))
	}

	return &domain.TwoFactorSetup{
		Secret:          secret,
		ManualEntryKey:  secret,
		ProvisioningURI: uri,
		QRCodePNG:       png,
	}, nil
}

// ConfirmTwoFactor enables 2FA once the client proves it holds the pending
// secret. A wrong code leaves the pending secret in place.
func (u *AuthUsecase) ConfirmTwoFactor(ctx context.Context, accountID, code string) error {
	account, err := u.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrInvalidToken
		}
		return u.storeErr("load account", err)
	}
	if account.TwoFactorEnabled {
		return errTwoFactorAlreadyEnabled
	}
	if !account.TwoFactorPending() {
		return domain.NewError(domain.KindValidation, "two-factor setup has not been started")
	}

	ok, err := u.checkTwoFactorCode(ctx, account, code)
	if err != nil {
		return err
	}
	if !ok {
		u.audit(ctx, account.ID, domain.EventMFAFailed, map[string]interface{}{"stage": "confirm"})
		return domain.ErrInvalidTwoFactorCode
	}

	_, err = u.mutate(ctx, account.ID, func(a *domain.Account) error {
		// A setup call in between replaced the secret the code was checked against.
		if a.TwoFactorSecret != account.TwoFactorSecret {
			return domain.ErrInvalidTwoFactorCode
		}
		a.TwoFactorEnabled = true
		return nil
	})
	if err != nil {
		return err
	}

	u.audit(ctx, account.ID, domain.EventMFAEnabled, nil)
	u.logger.InfoContext(ctx, "two-factor enabled", slog.String("account_id", account.ID))
	return nil
}

// checkTwoFactorCode validates code against the account secret at the current
// time. With replay protection on, a step can be consumed only once.
func (u *AuthUsecase) checkTwoFactorCode(ctx context.Context, account *domain.Account, code string) (bool, error) {
	counter, ok := u.totp.MatchStep(account.TwoFactorSecret, code, u.now())
	if !ok {
		return false, nil
	}
	if !u.opts.TOTPReplayProtection {
		return true, nil
	}

	fresh, err := u.tokens.MarkTOTPUsed(ctx, account.ID, counter, u.totp.ReplayWindow())
	if err != nil {
		return false, domain.DependencyError("record totp step", err)
	}
	return fresh, nil
}
