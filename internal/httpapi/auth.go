package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

var ErrBadToken = errors.New("invalid or malformed token")

// MintToken signs an identity into a compact bearer token:
// base64url(payload) "." base64url(hmac-sha256(payload)).
func MintToken(secret string, id Identity) (string, error) {
	if id.UserID == "" {
		return "", errors.New("user_id is required")
	}
	payload, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + sign(secret, encoded), nil
}

// VerifyToken checks the signature and returns the embedded identity.
func VerifyToken(secret, token string) (Identity, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Identity{}, ErrBadToken
	}
	if !hmac.Equal([]byte(sign(secret, encoded)), []byte(sig)) {
		return Identity{}, ErrBadToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Identity{}, ErrBadToken
	}
	var id Identity
	if err := json.Unmarshal(payload, &id); err != nil || id.UserID == "" {
		return Identity{}, ErrBadToken
	}
	return id, nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
