package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ScopeControl allows reading state and writing commands.
const ScopeControl = "valve:control"

// subjectLocal identifies tokens issued to local passkey holders.
const subjectLocal = "local"

// defaultTokenTTL applies when the configured TTL is not positive.
const defaultTokenTTL = 15 * time.Minute

// Claims extends JWT standard claims with the granted scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// Authenticator checks passkeys and issues and validates tokens for one
// device.
//
// Thread Safety: safe for concurrent use; all fields are read-only after
// construction.
type Authenticator struct {
	deviceID    string
	passkeyHash string
	secret      []byte
	ttl         time.Duration
	now         func() time.Time
}

// NewAuthenticator returns an Authenticator. An empty passkeyHash or secret
// leaves the corresponding operation failing with ErrNotConfigured.
func NewAuthenticator(deviceID, passkeyHash, secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		deviceID:    deviceID,
		passkeyHash: passkeyHash,
		secret:      []byte(secret),
		ttl:         ttl,
		now:         time.Now,
	}
}

// CheckPasskey returns nil when passkey matches the configured hash.
func (a *Authenticator) CheckPasskey(passkey string) error {
	if a.passkeyHash == "" {
		return ErrNotConfigured
	}
	ok, err := VerifyPasskey(passkey, a.passkeyHash)
	if err != nil {
		return fmt.Errorf("verifying passkey: %w", err)
	}
	if !ok {
		return ErrPasskeyMismatch
	}
	return nil
}

// Login exchanges a passkey for a signed access token.
func (a *Authenticator) Login(passkey string) (token string, expiresAt time.Time, err error) {
	if err := a.CheckPasskey(passkey); err != nil {
		return "", time.Time{}, err
	}
	return a.IssueToken()
}

// IssueToken signs a new HS256 access token for this device.
func (a *Authenticator) IssueToken() (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, ErrNotConfigured
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectLocal,
			Audience:  jwt.ClaimStrings{a.deviceID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Scope: ScopeControl,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken validates a token's signature, expiry, audience and scope.
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrNotConfigured
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(a.deviceID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Scope != ScopeControl {
		return nil, fmt.Errorf("%w: missing scope", ErrTokenInvalid)
	}
	return claims, nil
}
