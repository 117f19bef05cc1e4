// Package csrf issues and checks stateless CSRF tokens. A token is an HS256
// JWT carrying a random id and an expiry; nothing is stored server-side.
package csrf

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenType = "csrf"

// Claims is the payload of a CSRF token.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a fresh signed token.
func (m *Manager) Generate() (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Type: tokenType,
	})
	return token.SignedString(m.secret)
}

// Verify reports whether token is a valid, unexpired CSRF token signed with
// this manager's secret. It never panics.
func (m *Manager) Verify(token string) (ok bool) {
	if token == "" {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	return claims.Type == tokenType && claims.ID != ""
}
