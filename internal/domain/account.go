package domain

import (
	"context"
	"strings"
	"time"
)

// Account represents the central identity entity of the system.
type Account struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	PasswordHash []byte `json:"-"` // Never expose the password hash in JSON
	PasswordSalt []byte `json:"-"`

	EmailVerified    bool   `json:"email_verified"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	TwoFactorSecret  string `json:"-"` // TOTP secret key, set while pending or enabled

	// RefreshTokenHash is the digest of the single active refresh token.
	RefreshTokenHash   string     `json:"-"`
	RefreshTokenExpiry *time.Time `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// Version guards optimistic updates; the store bumps it on every write.
	Version int64 `json:"-"`
}

// HasActiveRefreshToken reports whether a refresh token is stored and unexpired at now.
func (a *Account) HasActiveRefreshToken(now time.Time) bool {
	return a.RefreshTokenHash != "" && a.RefreshTokenExpiry != nil && now.Before(*a.RefreshTokenExpiry)
}

// SetRefreshToken replaces the active refresh token digest and its expiry.
func (a *Account) SetRefreshToken(digest string, expiry time.Time) {
	a.RefreshTokenHash = digest
	a.RefreshTokenExpiry = &expiry
}

// ClearRefreshToken drops the active refresh token, ending the session.
func (a *Account) ClearRefreshToken() {
	a.RefreshTokenHash = ""
	a.RefreshTokenExpiry = nil
}

// TwoFactorPending reports whether a setup secret awaits confirmation.
func (a *Account) TwoFactorPending() bool {
	return !a.TwoFactorEnabled && a.TwoFactorSecret != ""
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AuthResponse defines the payload returned after a successful login or refresh.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// LoginResult is either a token pair or a request for the second factor.
type LoginResult struct {
	*AuthResponse
	RequiresTwoFactor bool `json:"requires_two_factor"`
}

// TwoFactorSetup is returned when a TOTP secret is provisioned.
type TwoFactorSetup struct {
	Secret          string `json:"secret"`
	ManualEntryKey  string `json:"manual_entry_key"`
	ProvisioningURI string `json:"qr_code_uri"`
	QRCodePNG       []byte `json:"-"`
}

// TokenPurpose scopes single-use tokens.
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "verify"
	PurposePasswordReset     TokenPurpose = "reset"
)

// Security event types written to the audit log.
const (
	EventRegistered      = "REGISTERED"
	EventEmailVerified   = "EMAIL_VERIFIED"
	EventLoginSuccess    = "LOGIN_SUCCESS"
	EventLoginFailed     = "LOGIN_FAILED"
	EventMFAFailed       = "MFA_FAILED"
	EventMFAEnabled      = "MFA_ENABLED"
	EventPasswordReset   = "PASSWORD_RESET"
	EventRefreshRejected = "REFRESH_REJECTED"
	EventLogout          = "LOGOUT"
)

// AccountRepository defines the contract for account persistence.
// This interface is implemented in the 'internal/repository' package.
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	// Insert stores a new account and fails with ErrDuplicateAccount on an email clash.
	Insert(ctx context.Context, account *Account) (string, error)
	// Update writes the account only if its Version still matches the stored one,
	// otherwise it returns ErrConcurrencyConflict. On success Version is incremented.
	Update(ctx context.Context, account *Account) error

	// LogSecurityEvent is used for the Audit Logs requirement
	LogSecurityEvent(ctx context.Context, accountID, eventType string, metadata map[string]interface{}) error
}

// OneTimeTokenRepository stores single-use verification and reset tokens
// (usually in Redis).
type OneTimeTokenRepository interface {
	// Store keeps digest bound to email for ttl.
	Store(ctx context.Context, purpose TokenPurpose, email, digest string, ttl time.Duration) error
	// Consume atomically removes the token and reports whether it existed.
	Consume(ctx context.Context, purpose TokenPurpose, email, digest string) (bool, error)
	// MarkTOTPUsed records a consumed TOTP step; false means it was already used.
	MarkTOTPUsed(ctx context.Context, accountID string, counter int64, ttl time.Duration) (bool, error)
}

// Notifier delivers verification and reset links.
type Notifier interface {
	SendVerificationLink(ctx context.Context, email, token string) error
	SendPasswordResetLink(ctx context.Context, email, token string) error
}
