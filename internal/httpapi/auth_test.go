package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// signToken issues the kind of token the business platform hands out.
func signToken(a *AuthManager, userID string, businessID string) (string, error) {
	return signTokenAt(a, userID, businessID, time.Now().UTC())
}

func signTokenAt(a *AuthManager, userID string, businessID string, issuedAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(issuedAt.Add(a.tokenTTL)),
			Issuer:    "cajapos",
		},
		BusinessID: businessID,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

func TestSignAndParseToken(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour)

	token, err := signToken(auth, "cashier", "main-business")
	require.NoError(t, err)

	actor, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "cashier", actor.UserID)
	assert.Equal(t, "main-business", actor.BusinessID)
}

func TestParseTokenRejections(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour)

	other, err := signToken(NewAuthManager("another-secret-another-secret-xx", time.Hour), "cashier", "b1")
	require.NoError(t, err)
	_, err = auth.ParseToken(other)
	assert.Error(t, err)

	noBusiness, err := signToken(auth, "cashier", "")
	require.NoError(t, err)
	_, err = auth.ParseToken(noBusiness)
	assert.EqualError(t, err, "token has no business")

	expired := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "cashier",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		BusinessID: "b1",
	})
	raw, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.ParseToken(raw)
	assert.EqualError(t, err, "invalid or expired token")

	noExpiry := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "cashier"},
		BusinessID:       "b1",
	})
	raw, err = noExpiry.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.ParseToken(raw)
	assert.Error(t, err)

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, sessionClaims{BusinessID: "b1"})
	raw, err = none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseToken(raw)
	assert.Error(t, err)
}

func TestParseTokenRejectsTokensOlderThanLifetime(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Hour)
	long := NewAuthManager(testSecret, 24*time.Hour)

	raw, err := signTokenAt(long, "cashier", "b1", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = long.ParseToken(raw)
	require.NoError(t, err)
	_, err = auth.ParseToken(raw)
	assert.EqualError(t, err, "token is older than the allowed lifetime")
}
