package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	tokenIssuer = "sentinel-identity"

	// 32 bytes = 256 bits of entropy for opaque tokens.
	opaqueTokenBytes = 32
)

var ErrInvalidToken = errors.New("invalid token")

// --- JWT Claims & Logic ---

type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the account identity carried by an access token.
type Identity struct {
	AccountID string
	Email     string
}

// TokenIssuer signs access tokens with a process-wide HMAC key and mints
// opaque refresh tokens. It is immutable after construction.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	rand      io.Reader
}

func NewTokenIssuer(secret string, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		rand:      rand.Reader,
	}
}

// WithClock returns a copy of the issuer that reads time from now.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	cp := *t
	cp.now = now
	return &cp
}

// AccessTTL reports the lifetime of issued access tokens.
func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

// IssueAccessToken creates a new HS256 JWT for the given identity.
func (t *TokenIssuer) IssueAccessToken(id Identity) (string, error) {
	now := t.now()
	claims := Claims{
		AccountID: id.AccountID,
		Email:     id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AccountID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateAccessToken parses a JWT and fails closed on a bad signature,
// expiry, or malformed structure.
func (t *TokenIssuer) ValidateAccessToken(tokenString string) (Identity, error) {
	return t.parse(tokenString, jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
}

// IdentityFromToken verifies the signature and issuer of a possibly expired
// access token and returns the identity it carries. Refresh uses it because the
// access token being replaced has usually expired already.
func (t *TokenIssuer) IdentityFromToken(tokenString string) (Identity, error) {
	return t.parse(tokenString, jwt.WithoutClaimsValidation())
}

func (t *TokenIssuer) parse(tokenString string, opts ...jwt.ParserOption) (Identity, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, errors.Wrap(ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AccountID == "" || claims.Subject != claims.AccountID {
		return Identity{}, ErrInvalidToken
	}
	// Checked here as well because WithoutClaimsValidation also skips WithIssuer.
	if claims.Issuer != tokenIssuer || claims.ExpiresAt == nil {
		return Identity{}, ErrInvalidToken
	}

	return Identity{AccountID: claims.AccountID, Email: claims.Email}, nil
}

// IssueRefreshToken returns an opaque, URL-safe random string. It carries no
// claims; its validity is decided by the account store alone.
func (t *TokenIssuer) IssueRefreshToken() (string, error) {
	return RandomToken(t.rand)
}

// RandomToken reads 256 bits from r and encodes them URL-safe without padding.
func RandomToken(r io.Reader) (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Wrap(err, "read random token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Digest returns the hex SHA-256 of an opaque token. Stores keep digests so
// a leaked table does not yield usable tokens.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
