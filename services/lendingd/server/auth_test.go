package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func authProbe(t *testing.T, auth *Authenticator, header string) (int, string) {
	t.Helper()
	var seen string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		require.True(t, ok)
		seen = caller.Hex()
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/pause", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code, seen
}

func TestIssuedTokenCarriesCaller(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "nftlend", Audience: "dapp"}, nil)
	token, err := auth.IssueToken(lenderAddr, time.Minute)
	require.NoError(t, err)

	status, seen := authProbe(t, auth, "Bearer "+token)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, lenderAddr.Hex(), seen)

	status, _ = authProbe(t, auth, "bearer "+token)
	require.Equal(t, http.StatusOK, status)
}

func TestAuthenticatorRejections(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "nftlend"}, nil)
	sign := func(claims jwt.MapClaims, secret string) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return "Bearer " + signed
	}
	exp := time.Now().Add(time.Hour).Unix()

	cases := map[string]string{
		"missing":        "",
		"scheme":         "Basic abc",
		"wrong secret":   sign(jwt.MapClaims{"sub": lenderAddr.Hex(), "iss": "nftlend", "exp": exp}, "another-secret-of-length"),
		"issuer":         sign(jwt.MapClaims{"sub": lenderAddr.Hex(), "iss": "other", "exp": exp}, testSecret),
		"no expiry":      sign(jwt.MapClaims{"sub": lenderAddr.Hex(), "iss": "nftlend"}, testSecret),
		"expired":        sign(jwt.MapClaims{"sub": lenderAddr.Hex(), "iss": "nftlend", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret),
		"subject":        sign(jwt.MapClaims{"sub": "alice", "iss": "nftlend", "exp": exp}, testSecret),
		"zero subject":   sign(jwt.MapClaims{"sub": "0x0000000000000000000000000000000000000000", "iss": "nftlend", "exp": exp}, testSecret),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			status, _ := authProbe(t, auth, header)
			require.Equal(t, http.StatusUnauthorized, status)
		})
	}
}

func TestAudienceMustMatch(t *testing.T) {
	issuer := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Audience: "other"}, nil)
	token, err := issuer.IssueToken(lenderAddr, time.Minute)
	require.NoError(t, err)

	verifier := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Audience: "dapp"}, nil)
	status, _ := authProbe(t, verifier, "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{}, nil).IssueToken(lenderAddr, time.Minute)
	require.Error(t, err)
}
