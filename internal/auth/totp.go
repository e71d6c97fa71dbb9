package auth

import (
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	TOTPPeriod      = 30
	TOTPSecretSize  = 32 // 256 bits
	DefaultTOTPSkew = 2  // ±2 steps = ±60 seconds
	qrCodeSize      = 256
)

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPManager handles TOTP secret generation and code validation
type TOTPManager struct {
	issuer string
	skew   uint
	now    func() time.Time
}

// TOTPKey is a freshly generated secret plus its provisioning URI
type TOTPKey struct {
	Secret          string // base32, no padding
	ProvisioningURI string // otpauth://totp/...
}

// NewTOTPManager creates a new TOTP manager
func NewTOTPManager(issuer string, skew uint) *TOTPManager {
	return &TOTPManager{
		issuer: issuer,
		skew:   skew,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests
func (tm *TOTPManager) WithClock(now func() time.Time) *TOTPManager {
	tm.now = now
	return tm
}

func (tm *TOTPManager) Skew() uint { return tm.skew }

// GenerateSecret creates a new random secret for label (normally the username)
func (tm *TOTPManager) GenerateSecret(label string) (*TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: label,
		SecretSize:  TOTPSecretSize,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	return &TOTPKey{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

// ProvisioningURI rebuilds the otpauth URI for an existing secret, so a retried
// setup shows the same QR code instead of a new one.
func (tm *TOTPManager) ProvisioningURI(secret, label string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: label,
		Secret:      raw,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build provisioning URI: %w", err)
	}
	return key.URL(), nil
}

// Validate checks code against secret at the current time, accepting codes from
// the configured number of 30s steps either side. Codes are not tracked, so a code
// stays reusable for as long as it is inside the window.
// Empty codes and malformed secrets fail closed.
func (tm *TOTPManager) Validate(secret, code string) bool {
	code = strings.TrimSpace(code)
	if code == "" || secret == "" {
		return false
	}
	if _, err := decodeSecret(secret); err != nil {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, tm.now(), totp.ValidateOpts{
		Period:    TOTPPeriod,
		Skew:      tm.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// RenderQRCode encodes uri as a PNG data URL suitable for an <img> tag
func RenderQRCode(uri string) (string, error) {
	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	raw, err := b32NoPadding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base32 secret: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("invalid base32 secret: empty")
	}
	return raw, nil
}
