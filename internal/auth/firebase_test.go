package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testProject = "demo-project"

type signerFixture struct {
	key     *rsa.PrivateKey
	kid     string
	certPEM string
}

func newSignerFixture(t *testing.T) *signerFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return &signerFixture{key: key, kid: "test-kid", certPEM: string(certPEM)}
}

func (f *signerFixture) certsServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(map[string]string{f.kid: f.certPEM})
	}))
}

func (f *signerFixture) signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = f.kid
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   issuerPrefix + testProject,
		"aud":   testProject,
		"sub":   "user-123",
		"email": "user@example.com",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

func newVerifier(t *testing.T, certsURL string) *TokenVerifier {
	t.Helper()
	verifier, err := NewTokenVerifier(TokenVerifierConfig{ProjectID: testProject, CertsURL: certsURL})
	if err != nil {
		t.Fatalf("NewTokenVerifier error: %v", err)
	}
	return verifier
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	fixture := newSignerFixture(t)
	server := fixture.certsServer(t, nil)
	defer server.Close()

	verifier := newVerifier(t, server.URL)
	identity, err := verifier.Verify(context.Background(), fixture.signToken(t, validClaims()))
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if identity.UID != "user-123" {
		t.Fatalf("unexpected uid: %q", identity.UID)
	}
	if identity.Email != "user@example.com" {
		t.Fatalf("unexpected email: %q", identity.Email)
	}
	if identity.Claims["aud"] != testProject {
		t.Fatalf("raw claims missing audience: %v", identity.Claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	fixture := newSignerFixture(t)
	server := fixture.certsServer(t, nil)
	defer server.Close()

	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()

	verifier := newVerifier(t, server.URL)
	_, err := verifier.Verify(context.Background(), fixture.signToken(t, claims))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	fixture := newSignerFixture(t)
	server := fixture.certsServer(t, nil)
	defer server.Close()

	claims := validClaims()
	claims["aud"] = "someone-else"

	verifier := newVerifier(t, server.URL)
	_, err := verifier.Verify(context.Background(), fixture.signToken(t, claims))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	fixture := newSignerFixture(t)
	server := fixture.certsServer(t, nil)
	defer server.Close()

	verifier := newVerifier(t, server.URL)
	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestVerifyReportsProviderUnavailable(t *testing.T) {
	fixture := newSignerFixture(t)
	server := fixture.certsServer(t, nil)
	server.Close() // provider unreachable

	verifier := newVerifier(t, server.URL)
	_, err := verifier.Verify(context.Background(), fixture.signToken(t, validClaims()))
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestVerifyCachesSigningCertificates(t *testing.T) {
	fixture := newSignerFixture(t)
	var hits atomic.Int64
	server := fixture.certsServer(t, &hits)
	defer server.Close()

	verifier := newVerifier(t, server.URL)
	for i := 0; i < 3; i++ {
		if _, err := verifier.Verify(context.Background(), fixture.signToken(t, validClaims())); err != nil {
			t.Fatalf("Verify %d error: %v", i, err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected one certificate fetch, got %d", got)
	}
}

func TestVerifyRejectsTokenSignedByUnknownKey(t *testing.T) {
	trusted := newSignerFixture(t)
	server := trusted.certsServer(t, nil)
	defer server.Close()

	rogue := newSignerFixture(t)
	rogue.kid = "rogue-kid"

	verifier := newVerifier(t, server.URL)
	_, err := verifier.Verify(context.Background(), rogue.signToken(t, validClaims()))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCertsTTLParsing(t *testing.T) {
	cases := []struct {
		header string
		want   time.Duration
	}{
		{"public, max-age=1800, must-revalidate", 1800 * time.Second},
		{"max-age=60", time.Minute},
		{"", defaultCertsTTL},
		{"no-cache", defaultCertsTTL},
		{"max-age=bogus", defaultCertsTTL},
	}
	for _, tc := range cases {
		if got := certsTTL(tc.header); got != tc.want {
			t.Fatalf("certsTTL(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestProjectIDFromCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"type":"service_account","project_id":"demo-project"}`), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	projectID, err := ProjectIDFromCredentials(path)
	if err != nil {
		t.Fatalf("ProjectIDFromCredentials error: %v", err)
	}
	if projectID != "demo-project" {
		t.Fatalf("unexpected project id: %q", projectID)
	}

	if _, err := ProjectIDFromCredentials(t.TempDir() + "/missing.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
