package rest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// generateTestKey creates a fresh 2048-bit RSA key pair for testing.
func generateTestKey(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return priv, &priv.PublicKey
}

// signToken creates a signed RS256 JWT with the given claims and private key.
func signToken(t *testing.T, priv *rsa.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "ops@example.com",
		Issuer:    "logviewer-test",
		Audience:  jwt.ClaimStrings{"logviewer"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

// wrappedHandler is a trivial handler that records whether it was called.
func wrappedHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, target, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	priv, pub := generateTestKey(t)
	var subject string
	h := JWTMiddleware(JWTConfig{PublicKey: pub, Issuer: "logviewer-test", Audience: "logviewer"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFromContext(r.Context())
			if ok {
				subject = c.Subject
			}
		}))

	rec := serve(h, "/", "Bearer "+signToken(t, priv, validClaims()))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if subject != "ops@example.com" {
		t.Errorf("subject in context = %q", subject)
	}
}

func TestJWTMiddleware_QueryToken(t *testing.T) {
	priv, pub := generateTestKey(t)
	called := false
	h := JWTMiddleware(JWTConfig{PublicKey: pub})(wrappedHandler(&called))

	rec := serve(h, "/stream?file=a.log&access_token="+signToken(t, priv, validClaims()), "")
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("expected query token to authenticate, got %d", rec.Code)
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	priv, pub := generateTestKey(t)
	otherPriv, _ := generateTestKey(t)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIss := validClaims()
	wrongIss.Issuer = "someone-else"
	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"other-service"}

	hs256 := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	hsToken, err := hs256.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}

	tests := []struct {
		name string
		auth string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic abc"},
		{"bare bearer", "Bearer "},
		{"garbage", "Bearer not.a.jwt"},
		{"wrong key", "Bearer " + signToken(t, otherPriv, validClaims())},
		{"expired", "Bearer " + signToken(t, priv, expired)},
		{"wrong issuer", "Bearer " + signToken(t, priv, wrongIss)},
		{"wrong audience", "Bearer " + signToken(t, priv, wrongAud)},
		{"hs256", "Bearer " + hsToken},
	}

	h := JWTMiddleware(JWTConfig{PublicKey: pub, Issuer: "logviewer-test", Audience: "logviewer"})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			rec := serve(h(wrappedHandler(&called)), "/", tc.auth)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if called {
				t.Error("next handler should not have been called")
			}
			if body := decode(t, rec); body["errorType"] != "UNAUTHORIZED" {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestLoadPublicKey(t *testing.T) {
	_, pub := generateTestKey(t)
	dir := t.TempDir()

	pkix, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, "jwt.pub")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix}), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadPublicKey(path)
	if err != nil {
		t.Fatalf("LoadPublicKey: %v", err)
	}
	if !got.Equal(pub) {
		t.Error("loaded key does not match")
	}

	if _, err := LoadPublicKey(filepath.Join(dir, "missing.pub")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.pub")
	_ = os.WriteFile(bad, []byte("not pem"), 0o600)
	if _, err := LoadPublicKey(bad); err == nil {
		t.Error("expected error for invalid PEM")
	}
}
