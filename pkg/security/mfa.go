package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod      = 30
	totpDigits      = otp.DigitsSix
	totpSecretBytes = 20 // 160 bits
	qrCodeSize      = 256
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPEngine generates secrets and validates RFC 6238 codes with a fixed
// 30 second step and a symmetric skew window measured in steps.
type TOTPEngine struct {
	skew uint
	rand io.Reader
}

func NewTOTPEngine(skewSteps int) *TOTPEngine {
	if skewSteps < 0 {
		skewSteps = 0
	}
	return &TOTPEngine{skew: uint(skewSteps), rand: rand.Reader}
}

// GenerateSecret generates a random Base32 string (compatible with TOTP secrets).
func (e *TOTPEngine) GenerateSecret() (string, error) {
	secret := make([]byte, totpSecretBytes)
	if _, err := io.ReadFull(e.rand, secret); err != nil {
		return "", errors.Wrap(err, "read totp secret")
	}
	// Google Authenticator requires Base32, not Base64
	return secretEncoding.EncodeToString(secret), nil
}

// ProvisioningURI returns the otpauth URI for QR code generation. It carries
// only the issuer, the account label and the secret.
func (e *TOTPEngine) ProvisioningURI(issuer, accountLabel, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + accountLabel,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// QRCode renders the provisioning URI as a PNG.
func (e *TOTPEngine) QRCode(uri string) ([]byte, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr code")
	}
	return png, nil
}

// ReplayWindow is how long a matched step can still be accepted by VerifyCode.
func (e *TOTPEngine) ReplayWindow() time.Duration {
	return time.Duration(2*e.skew+2) * totpPeriod * time.Second
}

// GenerateCode returns the code for the step containing at.
func (e *TOTPEngine) GenerateCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, e.opts())
}

// VerifyCode checks if the provided 6-digit code is valid for the given secret
// at the given time, tolerating the configured number of steps either way.
func (e *TOTPEngine) VerifyCode(secret, code string, at time.Time) bool {
	_, ok := e.MatchStep(secret, code, at)
	return ok
}

// MatchStep returns the time-step counter the code belongs to. Callers use the
// counter to reject a code that was already consumed.
func (e *TOTPEngine) MatchStep(secret, code string, at time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits.Length() || secret == "" {
		return 0, false
	}

	base := at.Unix() / totpPeriod
	matched, found := int64(0), false
	// Every step in the window is computed so timing does not reveal which one matched.
	for offset := -int64(e.skew); offset <= int64(e.skew); offset++ {
		counter := base + offset
		if counter < 0 {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(counter*totpPeriod, 0), e.opts())
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 && !found {
			matched, found = counter, true
		}
	}
	return matched, found
}

func (e *TOTPEngine) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      0,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	}
}
