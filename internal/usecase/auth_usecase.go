package usecase

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

// Options is the lifecycle part of the process configuration.
type Options struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
	TOTPIssuer           string

	// TOTPReplayProtection rejects a TOTP code whose step was already consumed.
	TOTPReplayProtection bool
	// RefreshMismatchRevokes clears the stored refresh token when a refresh
	// request presents a different one.
	RefreshMismatchRevokes bool
	// ConflictRetries bounds the reload-and-retry loop on optimistic conflicts.
	ConflictRetries int
}

// Deps are the collaborators of the lifecycle. Clock defaults to time.Now.
type Deps struct {
	Accounts domain.AccountRepository
	Tokens   domain.OneTimeTokenRepository
	Notifier domain.Notifier
	Hasher   *security.PasswordHasher
	Issuer   *security.TokenIssuer
	TOTP     *security.TOTPEngine
	Logger   *slog.Logger
	Clock    func() time.Time
}

// AuthUsecase drives the account lifecycle: registration, verification,
// login with optional TOTP, token rotation, password reset and logout.
// It keeps no mutable state of its own and is safe for concurrent use.
type AuthUsecase struct {
	accounts domain.AccountRepository
	tokens   domain.OneTimeTokenRepository
	notifier domain.Notifier
	hasher   *security.PasswordHasher
	issuer   *security.TokenIssuer
	totp     *security.TOTPEngine
	logger   *slog.Logger
	now      func() time.Time
	opts     Options

	// Verified against when the email is unknown so both paths pay for one KDF run.
	dummyHash []byte
	dummySalt []byte
}

func NewAuthUsecase(deps Deps, opts Options) (*AuthUsecase, error) {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	filler, err := security.RandomToken(rand.Reader)
	if err != nil {
		return nil, err
	}
	dummyHash, dummySalt, err := deps.Hasher.Hash(filler)
	if err != nil {
		return nil, errors.Wrap(err, "prepare dummy hash")
	}

	return &AuthUsecase{
		accounts:  deps.Accounts,
		tokens:    deps.Tokens,
		notifier:  deps.Notifier,
		hasher:    deps.Hasher,
		issuer:    deps.Issuer,
		totp:      deps.TOTP,
		logger:    deps.Logger,
		now:       deps.Clock,
		opts:      opts,
		dummyHash: dummyHash,
		dummySalt: dummySalt,
	}, nil
}

// Login handles authentication: credentials, then the second factor when
// enabled. Without a code for a 2FA account it returns RequiresTwoFactor and
// issues nothing.
func (u *AuthUsecase) Login(ctx context.Context, email, password, twoFactorCode string) (*domain.LoginResult, error) {
	account, err := u.accounts.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, u.storeErr("load account", err)
	}

	// The KDF runs on every path so an unknown email costs the same as a wrong password.
	hash, salt := u.dummyHash, u.dummySalt
	if account != nil {
		hash, salt = account.PasswordHash, account.PasswordSalt
	}
	match := u.hasher.Verify(password, hash, salt)

	if account == nil {
		u.audit(ctx, "", domain.EventLoginFailed, map[string]interface{}{"reason": "unknown_email"})
		return nil, domain.ErrInvalidCredentials
	}
	if !account.EmailVerified {
		return nil, domain.ErrEmailNotVerified
	}
	if !match {
		u.audit(ctx, account.ID, domain.EventLoginFailed, map[string]interface{}{"reason": "bad_password"})
		return nil, domain.ErrInvalidCredentials
	}

	if account.TwoFactorEnabled {
		if twoFactorCode == "" {
			return &domain.LoginResult{RequiresTwoFactor: true}, nil
		}
		ok, err := u.checkTwoFactorCode(ctx, account, twoFactorCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			u.audit(ctx, account.ID, domain.EventMFAFailed, nil)
			return nil, domain.ErrInvalidTwoFactorCode
		}
	}

	resp, err := u.generateSession(ctx, account.ID, func(fresh *domain.Account) error {
		// A password reset or 2FA change that landed since the checks above voids them.
		if !bytes.Equal(fresh.PasswordHash, account.PasswordHash) {
			return domain.ErrInvalidCredentials
		}
		if fresh.TwoFactorEnabled && !account.TwoFactorEnabled {
			return domain.ErrInvalidTwoFactorCode
		}
		now := u.now()
		fresh.LastLoginAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.audit(ctx, account.ID, domain.EventLoginSuccess, nil)
	u.logger.InfoContext(ctx, "login succeeded", slog.String("account_id", account.ID))

	return &domain.LoginResult{AuthResponse: resp}, nil
}

// generateSession creates the JWT Access Token and the Opaque Refresh Token
// and stores the refresh digest in the same conditional write as any change
// made by check.
func (u *AuthUsecase) generateSession(ctx context.Context, accountID string, check func(*domain.Account) error) (*domain.AuthResponse, error) {
	var resp *domain.AuthResponse

	_, err := u.mutate(ctx, accountID, func(account *domain.Account) error {
		if err := check(account); err != nil {
			return err
		}

		accessToken, err := u.issuer.IssueAccessToken(security.Identity{AccountID: account.ID, Email: account.Email})
		if err != nil {
			return errors.Wrap(err, "issue access token")
		}
		refreshToken, err := u.issuer.IssueRefreshToken()
		if err != nil {
			return errors.Wrap(err, "issue refresh token")
		}

		account.SetRefreshToken(security.Digest(refreshToken), u.now().Add(u.opts.RefreshTokenTTL))
		resp = &domain.AuthResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int64(u.issuer.AccessTTL().Seconds()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RefreshToken rotates the token pair. The access token may be expired but
// must carry a valid signature; the refresh token must equal the stored one
// and be unexpired. The previous refresh token stops working on success.
func (u *AuthUsecase) RefreshToken(ctx context.Context, accessToken, refreshToken string) (*domain.AuthResponse, error) {
	identity, err := u.issuer.IdentityFromToken(accessToken)
	if err != nil || refreshToken == "" {
		return nil, domain.ErrInvalidToken
	}
	presented := security.Digest(refreshToken)

	mismatch := false
	resp, err := u.generateSession(ctx, identity.AccountID, func(account *domain.Account) error {
		if !account.HasActiveRefreshToken(u.now()) ||
			subtle.ConstantTimeCompare([]byte(account.RefreshTokenHash), []byte(presented)) != 1 {
			mismatch = true
			return domain.ErrInvalidToken
		}
		return nil
	})
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, domain.ErrAccountNotFound):
		return nil, domain.ErrInvalidToken
	case !mismatch:
		return nil, err
	}

	u.audit(ctx, identity.AccountID, domain.EventRefreshRejected, nil)
	if u.opts.RefreshMismatchRevokes {
		if _, err := u.mutate(ctx, identity.AccountID, clearSession); err != nil {
			u.logger.ErrorContext(ctx, "revoke session after refresh mismatch failed",
				slog.String("account_id", identity.AccountID), slog.Any("error", err))
		}
	}
	return nil, domain.ErrInvalidToken
}

// Logout clears the stored refresh token. Access tokens already issued stay
// valid until they expire.
func (u *AuthUsecase) Logout(ctx context.Context, accountID string) error {
	if _, err := u.mutate(ctx, accountID, clearSession); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrInvalidToken
		}
		return err
	}
	u.audit(ctx, accountID, domain.EventLogout, nil)
	u.logger.InfoContext(ctx, "logged out", slog.String("account_id", accountID))
	return nil
}

func clearSession(account *domain.Account) error {
	account.ClearRefreshToken()
	return nil
}

// mutate loads the account, applies fn and commits with an optimistic update.
// On a version conflict it reloads and reapplies fn, at most ConflictRetries
// more times, before surfacing ErrConcurrencyConflict.
func (u *AuthUsecase) mutate(ctx context.Context, accountID string, fn func(*domain.Account) error) (*domain.Account, error) {
	for attempt := 0; ; attempt++ {
		account, err := u.accounts.FindByID(ctx, accountID)
		if err != nil {
			return nil, u.storeErr("load account", err)
		}
		if err := fn(account); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err = u.accounts.Update(ctx, account)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) || attempt >= u.opts.ConflictRetries {
			return nil, u.storeErr("update account", err)
		}
		u.logger.DebugContext(ctx, "retrying account update after conflict",
			slog.String("account_id", accountID), slog.Int("attempt", attempt+1))
	}
}

// storeErr passes taxonomy errors and context errors through and turns
// anything else into a DependencyError.
func (u *AuthUsecase) storeErr(op string, err error) error {
	if domain.KindOf(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.DependencyError(op, err)
}

func (u *AuthUsecase) audit(ctx context.Context, accountID, event string, metadata map[string]interface{}) {
	if err := u.accounts.LogSecurityEvent(ctx, accountID, event, metadata); err != nil {
		u.logger.WarnContext(ctx, "audit log write failed", slog.String("event", event), slog.Any("error", err))
	}
}
