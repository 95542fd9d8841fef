package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// TimestampLayout is how registration rows record their creation time.
const TimestampLayout = "2006-01-02T15:04:05"

func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifyHMAC(secret, msg, sig string) bool {
	expected := HMACSHA256Hex(secret, msg)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig)))
}

var ErrBadToken = errors.New("invalid token")

// SignToken encodes payload as base64url and appends an HMAC signature:
// "<payload>.<sig>".
func SignToken(secret string, payload []byte) string {
	p := base64.RawURLEncoding.EncodeToString(payload)
	return p + "." + HMACSHA256Hex(secret, p)
}

// OpenToken checks the signature of a SignToken value and returns the payload.
func OpenToken(secret, token string) ([]byte, error) {
	p, sig, ok := strings.Cut(token, ".")
	if !ok || p == "" || sig == "" {
		return nil, ErrBadToken
	}
	if !VerifyHMAC(secret, p, sig) {
		return nil, ErrBadToken
	}
	b, err := base64.RawURLEncoding.DecodeString(p)
	if err != nil {
		return nil, ErrBadToken
	}
	return b, nil
}

// StripSpaces removes every whitespace run, e.g. the spaces typed into a
// phone number.
func StripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
