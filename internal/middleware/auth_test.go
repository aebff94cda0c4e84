package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/pkg/httpcontext"
)

const (
	secret = "s3cret"
	issuer = "attribution-engine"
)

func sign(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func run(authorization string) (*fasthttp.RequestCtx, bool) {
	var ctx fasthttp.RequestCtx
	if authorization != "" {
		ctx.Request.Header.Set("Authorization", authorization)
	}
	called := false
	JWTAuth(secret, issuer, nil)(func(*fasthttp.RequestCtx) { called = true })(&ctx)
	return &ctx, called
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	tok := sign(t, secret, jwt.MapClaims{
		"user_id": "alice",
		"role":    "admin",
		"iss":     issuer,
		"exp":     time.Now().Add(time.Minute).Unix(),
	})

	ctx, called := run("Bearer " + tok)
	require.True(t, called)
	assert.Equal(t, "alice", ctx.UserValue(httpcontext.UserValueParticipant))
	assert.Equal(t, "admin", ctx.UserValue(httpcontext.UserValueRole))

	_, called = run(tok)
	assert.True(t, called, "the Bearer prefix is optional")
}

func TestJWTAuthRejects(t *testing.T) {
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{"user_id": "alice", "iss": issuer, "exp": time.Now().Add(time.Minute).Unix()}
	}
	expired := valid()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	foreign := valid()
	foreign["iss"] = "someone-else"
	anonymous := valid()
	delete(anonymous, "user_id")

	cases := map[string]string{
		"missing":      "",
		"garbage":      "Bearer not-a-jwt",
		"wrong secret": "Bearer " + sign(t, "other", valid()),
		"expired":      "Bearer " + sign(t, secret, expired),
		"wrong issuer": "Bearer " + sign(t, secret, foreign),
		"no user_id":   "Bearer " + sign(t, secret, anonymous),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, called := run(header)
			assert.False(t, called)
			assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
			assert.Contains(t, string(ctx.Response.Body()), `"code":"UNAUTHORIZED"`)
			assert.Nil(t, ctx.UserValue(httpcontext.UserValueParticipant))
		})
	}
}
