package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphplan-mcp/internal/config"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct{}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

const testIssuer = "https://test-issuer.com"

func fakeToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	headerBytes, err := json.Marshal(map[string]interface{}{
		"alg": "RS256",
		"typ": "JWT",
		"kid": "test-key",
	})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	return base64.RawURLEncoding.EncodeToString(headerBytes) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
}

func apiTestAuth() *Auth {
	verifier := oidc.NewVerifier(testIssuer, &MockKeySet{}, &oidc.Config{
		SkipClientIDCheck: true,
	})
	return &Auth{apiVerifier: verifier, logger: &NoOpLogger{}}
}

func TestRequireAuth_BearerToken_InjectsEmail(t *testing.T) {
	a := apiTestAuth()
	token := fakeToken(t, map[string]interface{}{
		"iss":   testIssuer,
		"aud":   "test-client",
		"sub":   "test-user",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-1 * time.Minute).Unix(),
		"email": "alice@example.com",
	})

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok := r.Context().Value(EmailContextKey).(string)
		assert.True(t, ok, "email should be in context")
		assert.Equal(t, "alice@example.com", email)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Logf("Response Body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_MissingEmailClaim(t *testing.T) {
	a := apiTestAuth()
	token := fakeToken(t, map[string]interface{}{
		"iss": testIssuer,
		"aud": "test-client",
		"sub": "test-user",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Add(-1 * time.Minute).Unix(),
	})

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run without an email claim")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	a := apiTestAuth()
	token := fakeToken(t, map[string]interface{}{
		"iss":   testIssuer,
		"aud":   "test-client",
		"sub":   "test-user",
		"exp":   time.Now().Add(-time.Hour).Unix(),
		"iat":   time.Now().Add(-2 * time.Hour).Unix(),
		"email": "alice@example.com",
	})

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run for an expired token")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_NoCredentialsRedirectsToLogin(t *testing.T) {
	a := apiTestAuth()
	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	rec := httptest.NewRecorder()

	a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run without credentials")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRequireAuth_BypassMode(t *testing.T) {
	cfg := &config.Config{
		Environment:   "dev",
		DevModeBypass: true,
	}
	a, err := New(context.Background(), cfg, &NoOpLogger{})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	rec := httptest.NewRecorder()

	a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok := r.Context().Value(EmailContextKey).(string)
		assert.True(t, ok)
		assert.Equal(t, "dev@localhost", email)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_IncompleteConfig(t *testing.T) {
	cfg := &config.Config{Environment: "production"}
	_, err := New(context.Background(), cfg, &NoOpLogger{})
	assert.Error(t, err)
}

func TestLogoutClearsSessionCookie(t *testing.T) {
	a := apiTestAuth()
	req := httptest.NewRequest("GET", "/logout", nil)
	rec := httptest.NewRecorder()

	a.LogoutHandler(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "id_token", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}
