package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func agentToken(t *testing.T, now time.Time, mutate func(*jwt.Builder) *jwt.Builder) jwt.Token {
	t.Helper()
	b := jwt.NewBuilder().
		Issuer("backend-proposal").
		Audience([]string{"proposal-agents"}).
		Subject("A001").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Hour))
	if mutate != nil {
		b = mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	return tok
}

func TestTokenValidator(t *testing.T) {
	now := time.Now()
	validator := TokenValidator{Issuer: "backend-proposal", Audience: "proposal-agents", ClockSkew: time.Second, Algorithm: jwa.HS256}

	cases := []struct {
		name      string
		mutate    func(*jwt.Builder) *jwt.Builder
		algorithm jwa.SignatureAlgorithm
		wantErr   bool
	}{
		{name: "valid", algorithm: jwa.HS256},
		{name: "issuer mismatch", algorithm: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Issuer("other") }},
		{name: "audience mismatch", algorithm: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Audience([]string{"shop"}) }},
		{name: "expired", algorithm: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Expiration(now.Add(-time.Minute)) }},
		{name: "not yet valid", algorithm: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder { return b.NotBefore(now.Add(5 * time.Minute)) }},
		{name: "missing subject", algorithm: jwa.HS256, wantErr: true, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Subject("") }},
		{name: "algorithm mismatch", algorithm: jwa.RS256, wantErr: true},
		{name: "missing algorithm", algorithm: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(agentToken(t, now, tc.mutate), tc.algorithm, now)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTokenValidatorRequiresExpiry(t *testing.T) {
	now := time.Now()
	tok, err := jwt.NewBuilder().Subject("A001").IssuedAt(now).Build()
	require.NoError(t, err)
	require.Error(t, TokenValidator{}.Validate(tok, jwa.HS256, now))
}
