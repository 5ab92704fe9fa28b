package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// NewAccessToken returns a random group-cart access token and its bcrypt
// hash. Only the hash is stored; the token is handed to the cart owner once.
func NewAccessToken() (token, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate access token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash access token: %w", err)
	}
	return token, string(h), nil
}

// CheckAccessToken reports whether token matches hash.
func CheckAccessToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
