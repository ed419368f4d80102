package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	s := New("secret", time.Hour)

	tok, err := s.GenerateToken(7, "admin")
	require.NoError(t, err)

	claims, err := s.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestValidateRejectsExpired(t *testing.T) {
	s := New("secret", time.Minute)
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }
	tok, err := s.GenerateToken(1, "admin")
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = s.ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	s := New("secret", time.Hour)
	now := time.Now()

	sign := func(method jwtlib.SigningMethod, key interface{}, c Claims) string {
		t.Helper()
		str, err := jwtlib.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return str
	}
	registered := func(iss string) jwtlib.RegisteredClaims {
		return jwtlib.RegisteredClaims{Issuer: iss, ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour))}
	}

	cases := map[string]string{
		"other issuer": sign(jwtlib.SigningMethodHS256, []byte("secret"), Claims{UserID: 1, RegisteredClaims: registered("photo")}),
		"other secret": sign(jwtlib.SigningMethodHS256, []byte("nope"), Claims{UserID: 1, RegisteredClaims: registered(issuer)}),
		"hs512":        sign(jwtlib.SigningMethodHS512, []byte("secret"), Claims{UserID: 1, RegisteredClaims: registered(issuer)}),
		"no user":      sign(jwtlib.SigningMethodHS256, []byte("secret"), Claims{RegisteredClaims: registered(issuer)}),
		"garbage":      "not.a.token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.ValidateToken(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
