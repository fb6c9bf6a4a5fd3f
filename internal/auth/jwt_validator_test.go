package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func buildToken(t *testing.T, issuer string, issuedAt, notBefore, expires time.Time) jwt.Token {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{"village-market"}).
		Subject("user-1").
		IssuedAt(issuedAt).
		NotBefore(notBefore).
		Expiration(expires).
		Build()
	require.NoError(t, err)
	return tok
}

func TestTokenValidatorAcceptsFreshToken(t *testing.T) {
	now := time.Now()
	tok := buildToken(t, "village-market", now, now, now.Add(time.Minute))

	v := TokenValidator{Issuer: "village-market", Audience: "village-market", ClockSkew: time.Second, Algorithm: jwa.HS256}
	require.NoError(t, v.Validate(tok, jwa.HS256, now))
}

func TestTokenValidatorRejectsWrongIssuer(t *testing.T) {
	now := time.Now()
	tok := buildToken(t, "someone-else", now, now, now.Add(time.Minute))

	v := TokenValidator{Issuer: "village-market", Audience: "village-market", Algorithm: jwa.HS256}
	require.Error(t, v.Validate(tok, jwa.HS256, now))
}

func TestTokenValidatorRejectsExpired(t *testing.T) {
	now := time.Now()
	tok := buildToken(t, "village-market", now.Add(-2*time.Hour), now.Add(-2*time.Hour), now.Add(-time.Minute))

	v := TokenValidator{Issuer: "village-market", Audience: "village-market", Algorithm: jwa.HS256}
	require.Error(t, v.Validate(tok, jwa.HS256, now))
}

func TestTokenValidatorRejectsNotYetValid(t *testing.T) {
	now := time.Now()
	tok := buildToken(t, "village-market", now, now.Add(5*time.Minute), now.Add(10*time.Minute))

	v := TokenValidator{Issuer: "village-market", Audience: "village-market", ClockSkew: time.Second, Algorithm: jwa.HS256}
	require.Error(t, v.Validate(tok, jwa.HS256, now))
}

func TestTokenValidatorRejectsAlgorithmDowngrade(t *testing.T) {
	now := time.Now()
	tok := buildToken(t, "village-market", now, now, now.Add(time.Minute))

	v := TokenValidator{Issuer: "village-market", Audience: "village-market", Algorithm: jwa.HS256}
	require.Error(t, v.Validate(tok, jwa.RS256, now))
}
