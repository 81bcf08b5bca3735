// Package token issues and verifies the JWT pair used by the HTTP layer:
// a short-lived access token and a refresh token marked with a token_type
// claim so one cannot stand in for the other.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongType    = errors.New("wrong token type")
)

// Manager signs and verifies tokens with a shared HMAC secret
type Manager struct {
	secret []byte
	issuer string
}

func NewManager(secret, issuer string) *Manager {
	return &Manager{secret: []byte(secret), issuer: issuer}
}

// IssueAccessToken returns a signed access token for the user
func (m *Manager) IssueAccessToken(userID uint) (string, error) {
	return m.sign(userID, "access", accessTokenTTL)
}

// IssueRefreshToken returns a signed refresh token for the user
func (m *Manager) IssueRefreshToken(userID uint) (string, error) {
	return m.sign(userID, "refresh", refreshTokenTTL)
}

func (m *Manager) sign(userID uint, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        strconv.FormatUint(uint64(userID), 10),
		"iss":        m.issuer,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
		"token_type": tokenType,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

// VerifyAccessToken validates an access token and returns the user ID
func (m *Manager) VerifyAccessToken(tokenString string) (uint, error) {
	return m.verify(tokenString, "access")
}

// VerifyRefreshToken validates a refresh token and returns the user ID
func (m *Manager) VerifyRefreshToken(tokenString string) (uint, error) {
	return m.verify(tokenString, "refresh")
}

func (m *Manager) verify(tokenString, wantType string) (uint, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	if claims["token_type"] != wantType {
		return 0, ErrWrongType
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	userID, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, sub)
	}
	return uint(userID), nil
}
