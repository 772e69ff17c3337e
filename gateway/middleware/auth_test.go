package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "marketplace-test-secret"

var testCaller = common.HexToAddress("0x1111111111111111111111111111111111111111")

func newTestAuth() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:       true,
		HMACSecret:    testSecret,
		Issuer:        "marketplace",
		Audience:      "marketplace-api",
		OptionalPaths: []string{"/v1/listings/"},
	}, nil)
}

func callerEcho(t *testing.T, seen *common.Address) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller, ok := CallerFromContext(r.Context()); ok {
			*seen = caller
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticatorAcceptsIssuedToken(t *testing.T) {
	token, err := IssueToken(testSecret, "marketplace", "marketplace-api", testCaller, []string{"admin"}, time.Minute)
	require.NoError(t, err)

	var seen common.Address
	handler := newTestAuth().Middleware("admin")(callerEcho(t, &seen))
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/pause", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, testCaller, seen)
}

func TestAuthenticatorRejections(t *testing.T) {
	auth := newTestAuth()
	valid, err := IssueToken(testSecret, "marketplace", "marketplace-api", testCaller, nil, time.Minute)
	require.NoError(t, err)
	wrongAudience, err := IssueToken(testSecret, "marketplace", "other", testCaller, nil, time.Minute)
	require.NoError(t, err)
	wrongSecret, err := IssueToken("other-secret", "marketplace", "marketplace-api", testCaller, nil, time.Minute)
	require.NoError(t, err)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testCaller.Hex(),
		"iss": "marketplace",
		"aud": "marketplace-api",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"iss": "marketplace",
		"aud": "marketplace-api",
	})
	badSubjectToken, err := badSubject.SignedString([]byte(testSecret))
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		scopes []string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "wrong audience", header: "Bearer " + wrongAudience, want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + wrongSecret, want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expiredToken, want: http.StatusUnauthorized},
		{name: "subject not address", header: "Bearer " + badSubjectToken, want: http.StatusUnauthorized},
		{name: "missing scope", header: "Bearer " + valid, scopes: []string{"admin"}, want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen common.Address
			handler := auth.Middleware(tc.scopes...)(callerEcho(t, &seen))
			req := httptest.NewRequest(http.MethodPost, "/v1/proceeds/withdraw", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, tc.want, res.Code)
			require.Equal(t, common.Address{}, seen)
		})
	}
}

func TestAuthenticatorOptionalPaths(t *testing.T) {
	var seen common.Address
	handler := newTestAuth().Middleware()(callerEcho(t, &seen))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/listings/0xabc/1", nil))
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestAuthenticatorDisabledUsesCallerHeader(t *testing.T) {
	var seen common.Address
	handler := NewAuthenticator(AuthConfig{}, nil).Middleware("admin")(callerEcho(t, &seen))
	req := httptest.NewRequest(http.MethodPost, "/v1/listings", nil)
	req.Header.Set("X-Caller-Address", testCaller.Hex())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, testCaller, seen)
}

func TestExtractScopes(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, extractScopes(jwt.MapClaims{"scope": " a  b "}, ""))
	require.Equal(t, []string{"x"}, extractScopes(jwt.MapClaims{"roles": []interface{}{"x", 3}}, "roles"))
	require.Nil(t, extractScopes(jwt.MapClaims{}, "scope"))
}
