package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/authz"
	"github.com/angelmondragon/orderflow-backend/pkg/auth"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
}

// serveAuth runs Auth in front of a handler that captures the actor.
func serveAuth(t *testing.T, cfg config.JWTConfig, header string) (*httptest.ResponseRecorder, *authz.Actor) {
	t.Helper()
	var captured *authz.Actor
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := ActorFromContext(r.Context()); ok {
			captured = &actor
		}
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp, captured
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	cfg := testJWT()
	foreign := cfg
	foreign.Issuer = "someone-else"
	expired, err := auth.MintAccessToken(cfg, time.Now().Add(-3*time.Hour), auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCustomer})
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"empty bearer": "Bearer   ",
		"basic scheme": "Basic dXNlcjpwYXNz",
		"bare token":   mintTestToken(t, cfg, enums.RoleCustomer, nil),
		"garbage":      "Bearer invalid",
		"other issuer": "Bearer " + mintTestToken(t, foreign, enums.RoleCustomer, nil),
		"expired":      "Bearer " + expired,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			resp, actor := serveAuth(t, cfg, header)
			require.Equal(t, http.StatusUnauthorized, resp.Code)
			require.Contains(t, resp.Header().Get("WWW-Authenticate"), "Bearer")
			require.Nil(t, actor)
		})
	}
}

func TestAuthSeedsVendorActor(t *testing.T) {
	cfg := testJWT()
	shopID := uuid.New()

	resp, actor := serveAuth(t, cfg, "Bearer "+mintTestToken(t, cfg, enums.RoleVendor, &shopID))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, actor)
	require.NotEqual(t, uuid.Nil, actor.UserID)
	require.Equal(t, enums.RoleVendor, actor.Role)
	require.Equal(t, &shopID, actor.ShopID)
}

func TestAuthSchemeIsCaseInsensitive(t *testing.T) {
	cfg := testJWT()
	resp, actor := serveAuth(t, cfg, "bearer "+mintTestToken(t, cfg, enums.RoleCustomer, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, enums.RoleCustomer, actor.Role)
	require.Nil(t, actor.ShopID)
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("  BEARER abc.def  ")
	require.True(t, ok)
	require.Equal(t, "abc.def", token)

	_, ok = bearerToken("Token abc")
	require.False(t, ok)
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, role enums.Role, shopID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		ShopID: shopID,
	})
	require.NoError(t, err)
	return token
}
