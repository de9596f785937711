package attribution

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidFormat means the token is neither id.signature nor a bare UUID
	ErrInvalidFormat = errors.New("tracking token has invalid format")
	// ErrSignatureMismatch means the token's HMAC does not match its id
	ErrSignatureMismatch = errors.New("tracking token signature mismatch")
)

// CookieValidator signs and verifies tamper-proof tracking tokens of the form
// {referral_id}.{hex(HMAC-SHA256(referral_id, secret))}. While the legacy
// window is open a bare UUID is accepted without a signature so that cookies
// issued before signing was introduced keep working.
type CookieValidator struct {
	secret            string
	allowLegacyTokens bool
}

// NewCookieValidator creates a validator for the given shared secret
func NewCookieValidator(secret string, allowLegacyTokens bool) *CookieValidator {
	return &CookieValidator{
		secret:            secret,
		allowLegacyTokens: allowLegacyTokens,
	}
}

// Sign produces the signed token for a referral id. Pure function, no side effects.
func (v *CookieValidator) Sign(referralID uuid.UUID) string {
	id := referralID.String()
	return id + "." + v.signature(id)
}

// Verify checks a token and returns the referral id it embeds
func (v *CookieValidator) Verify(token string) (uuid.UUID, error) {
	idPart, sig, found := strings.Cut(token, ".")
	if !found {
		// Legacy unsigned cookie: a bare UUID with no separator.
		if !v.allowLegacyTokens {
			return uuid.Nil, ErrInvalidFormat
		}
		id, err := uuid.Parse(token)
		if err != nil {
			return uuid.Nil, ErrInvalidFormat
		}
		return id, nil
	}

	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, ErrInvalidFormat
	}

	expected := v.signature(idPart)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return uuid.Nil, ErrSignatureMismatch
	}

	return id, nil
}

// signature computes the hex HMAC-SHA256 of a message with the shared secret
func (v *CookieValidator) signature(message string) string {
	h := hmac.New(sha256.New, []byte(v.secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
