package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"cajapos/backend/internal/domain"
)

// AuthManager verifies bearer tokens issued by the business platform. The
// subject is the user id; business_id scopes every request. Tokens issued
// longer than tokenTTL ago are refused even if their exp is later.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	BusinessID string `json:"business_id"`
}

func NewAuthManager(secret string, tokenTTL time.Duration) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), tokenTTL: tokenTTL}
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithExpirationRequired())
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if claims.IssuedAt != nil && time.Since(claims.IssuedAt.Time) > a.tokenTTL {
		return domain.Actor{}, errors.New("token is older than the allowed lifetime")
	}
	businessID := strings.TrimSpace(claims.BusinessID)
	if businessID == "" {
		return domain.Actor{}, errors.New("token has no business")
	}
	return domain.Actor{UserID: sub, BusinessID: businessID}, nil
}
