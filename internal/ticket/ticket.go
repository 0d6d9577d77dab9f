package ticket

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mediagate.org/internal/access"
)

const (
	issuer            = "mediagate"
	secretEnvVariable = "MEDIAGATE_TICKET_SECRET"
)

var (
	errMissingSecret = errors.New("ticket secret is not configured")

	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

// ErrInvalidTicket indicates the ticket failed validation. Any parse or
// claim failure maps here: a broken ticket is a denial, never a grant.
var ErrInvalidTicket = errors.New("invalid ticket")

// Claims binds a ticket to one resource at one permission level. Streaming
// handlers verify tickets per segment instead of re-running the full
// decision pipeline.
type Claims struct {
	ResourceType string `json:"rtype"`
	ResourceID   int64  `json:"rid"`
	Permission   string `json:"perm"`
	jwt.RegisteredClaims
}

// Issue signs a playback ticket for a granted decision using HS256. A
// denied decision can never be ticketed.
func Issue(d access.Decision, ttl time.Duration) (string, error) {
	if !d.Granted {
		return "", errors.New("ticket: decision did not grant access")
	}
	if ttl <= 0 {
		return "", errors.New("ticket: ttl must be greater than zero")
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	subject := d.Request.RequesterID
	if subject == "" {
		subject = "anonymous"
	}
	claims := Claims{
		ResourceType: string(d.Request.Resource.Type),
		ResourceID:   d.Request.Resource.ID,
		Permission:   d.Permission.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secretBytes)
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and that the ticket covers the
// target resource at the required level.
func Verify(token string, ref access.ResourceRef, required access.Permission) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidTicket
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidTicket
		}
		return secretBytes, nil
	})
	if err != nil {
		return nil, ErrInvalidTicket
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidTicket
	}
	if claims.Issuer != issuer {
		return nil, ErrInvalidTicket
	}
	if claims.ResourceType != string(ref.Type) || claims.ResourceID != ref.ID {
		return nil, ErrInvalidTicket
	}
	level, err := access.ParsePermission(claims.Permission)
	if err != nil || !level.Includes(required) {
		return nil, ErrInvalidTicket
	}
	return claims, nil
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secret.ready {
		return secret.value, secret.err
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		secret.err = errMissingSecret
		secret.ready = true
		return nil, secret.err
	}
	secret.value = []byte(raw)
	secret.err = nil
	secret.ready = true
	return secret.value, nil
}

// ResetSecretForTests clears the cached secret value. Only intended for test use.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}
