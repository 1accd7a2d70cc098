package auth

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is fixed; tokens are valid for 7 days from issuance.
const TokenTTL = 7 * 24 * time.Hour

// Internal rejection reasons. Only PublicMessage ever reaches a caller.
var (
	ErrTokenMissing     = errors.New("token missing")
	ErrMalformedScheme  = errors.New("malformed authorization scheme")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrUnexpectedAlg    = errors.New("unexpected signing method")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrEmptySecret      = errors.New("signing secret is empty")
)

type Claims struct {
	UserID string `json:"sub"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager takes the secret validated by config.Load; it is held by
// reference for the life of the process.
func NewManager(secret string) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    TokenTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (m *Manager) GenerateToken(userID, role string) (string, error) {
	now := m.now()

	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks the algorithm, signature and expiry of raw and returns the
// caller identity carried in it.
func (m *Manager) Verify(raw string) (authz.Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return authz.Identity{}, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrUnexpectedAlg
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return authz.Identity{}, ErrTokenExpired
		case errors.Is(err, ErrUnexpectedAlg), errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return authz.Identity{}, ErrInvalidSignature
		default:
			return authz.Identity{}, ErrInvalidClaims
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return authz.Identity{}, ErrInvalidClaims
	}

	id := authz.Identity{SubjectID: claims.UserID, Role: claims.Role}
	if id.SubjectID == "" || !user.ValidRole(id.Role) {
		return authz.Identity{}, ErrInvalidClaims
	}

	return id, nil
}

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrTokenMissing
	}

	match := bearerPattern.FindStringSubmatch(header)
	if match == nil {
		return "", ErrMalformedScheme
	}

	raw := strings.TrimSpace(match[1])
	if raw == "" {
		return "", ErrTokenMissing
	}
	return raw, nil
}

// PublicMessage collapses every rejection into missing, invalid or expired.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "Token missing"
	case errors.Is(err, ErrTokenExpired):
		return "Token expired"
	default:
		return "Token invalid"
	}
}
