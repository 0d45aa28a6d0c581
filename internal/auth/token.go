// internal/auth/token.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs and verifies session tokens with an ed25519 key pair.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TTL is the token lifetime; zero means tokens never expire.
	TTL time.Duration
}

// NewIssuer generates a fresh key pair. Tokens do not survive a restart.
func NewIssuer(ttl time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, TTL: ttl}, nil
}

// NewIssuerFromPath reads a raw ed25519 private key from file; the public key
// is derived from it.
func NewIssuerFromPath(privatePath string, ttl time.Duration) (*Issuer, error) {
	data, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key file has %d bytes, want %d", len(data), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(data)
	return &Issuer{privateKey: priv, publicKey: priv.Public().(ed25519.PublicKey), TTL: ttl}, nil
}

// ParseTTL reads a TOKEN_EXPIRE_TIME style value: "", "0" and "never" mean
// no expiry, anything else is a Go duration.
func ParseTTL(s string) (time.Duration, error) {
	switch strings.TrimSpace(s) {
	case "", "0", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// CreateJWT returns a signed token with "sub" = username.
func (i *Issuer) CreateJWT(username string) (string, error) {
	claims := jwt.MapClaims{
		"sub": username,
		"iat": time.Now().Unix(),
	}
	if i.TTL > 0 {
		claims["exp"] = time.Now().Add(i.TTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// AuthenticateJWT verifies a token string and returns its "sub" claim.
func (i *Issuer) AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	username, ok := claims["sub"].(string)
	if !ok || username == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return username, nil
}
