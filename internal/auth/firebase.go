package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// defaultCertsURL publishes the x509 certificates the provider signs ID
	// tokens with, keyed by key id.
	defaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

	issuerPrefix = "https://securetoken.google.com/"

	defaultCertsTTL       = time.Hour
	defaultProviderClient = 10 * time.Second
)

// TokenVerifierConfig configures a TokenVerifier.
type TokenVerifierConfig struct {
	// ProjectID is the identity provider project the tokens must be issued
	// for. It doubles as the expected audience.
	ProjectID string
	// CertsURL overrides the signing-certificate endpoint, mainly for tests.
	CertsURL string
	// HTTPClient overrides the client used to reach the provider.
	HTTPClient *http.Client
	// Now overrides the time source used for expiry checks.
	Now func() time.Time
}

// TokenVerifier verifies RS256 ID tokens locally against the provider's
// published signing certificates, the same checks the provider SDK performs:
// signature, issuer, audience, and expiry. Certificates are cached per the
// provider's Cache-Control max-age.
type TokenVerifier struct {
	projectID  string
	certsURL   string
	httpClient *http.Client
	now        func() time.Time

	mu         sync.Mutex
	keys       map[string]*rsa.PublicKey
	keysExpiry time.Time
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// NewTokenVerifier constructs a TokenVerifier for the given project.
func NewTokenVerifier(cfg TokenVerifierConfig) (*TokenVerifier, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("identity project id is required")
	}
	certsURL := strings.TrimSpace(cfg.CertsURL)
	if certsURL == "" {
		certsURL = defaultCertsURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultProviderClient}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenVerifier{
		projectID:  projectID,
		certsURL:   certsURL,
		httpClient: httpClient,
		now:        now,
	}, nil
}

// ProjectIDFromCredentials reads the provider project id from a service
// credentials JSON file.
func ProjectIDFromCredentials(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read credentials file: %w", err)
	}
	var creds struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return "", fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	projectID := strings.TrimSpace(creds.ProjectID)
	if projectID == "" {
		return "", fmt.Errorf("credentials file %s has no project_id", path)
	}
	return projectID, nil
}

// Verify validates the bearer credential and returns the caller's identity.
// Credential failures wrap ErrInvalidToken; failures to reach the provider
// wrap ErrProviderUnavailable.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty credential", ErrInvalidToken)
	}

	claims := &idTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if isProviderErr(err) {
			return Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	raw, err := decodeClaims(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return Identity{
		UID:    claims.Subject,
		Email:  claims.Email,
		Claims: raw,
	}, nil
}

type providerErr struct{ err error }

func (e providerErr) Error() string { return e.err.Error() }

func (e providerErr) Unwrap() error { return e.err }

func isProviderErr(err error) bool {
	var pe providerErr
	return errors.As(err, &pe)
}

func (v *TokenVerifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header has no kid")
		}
		return v.signingKey(ctx, kid)
	}
}

// signingKey resolves the certificate for kid, refreshing the cache when it
// has expired or when kid is unknown (key rotation).
func (v *TokenVerifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil && v.now().Before(v.keysExpiry) {
		if key, ok := v.keys[kid]; ok {
			return key, nil
		}
	}

	if err := v.refreshKeysLocked(ctx); err != nil {
		return nil, providerErr{err}
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no signing certificate for kid %q", kid)
	}
	return key, nil
}

func (v *TokenVerifier) refreshKeysLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return fmt.Errorf("build certificate request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch signing certificates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("certificate endpoint returned status %d", resp.StatusCode)
	}

	var pemByKid map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&pemByKid); err != nil {
		return fmt.Errorf("decode certificate payload: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pemByKid))
	for kid, certPEM := range pemByKid {
		key, err := parseCertificateKey(certPEM)
		if err != nil {
			return fmt.Errorf("parse certificate %s: %w", kid, err)
		}
		keys[kid] = key
	}
	if len(keys) == 0 {
		return fmt.Errorf("certificate endpoint returned no keys")
	}

	v.keys = keys
	v.keysExpiry = v.now().Add(certsTTL(resp.Header.Get("Cache-Control")))
	return nil
}

func parseCertificateKey(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate key is %T, want RSA", cert.PublicKey)
	}
	return key, nil
}

func certsTTL(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if value, ok := strings.CutPrefix(directive, "max-age="); ok {
			if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return defaultCertsTTL
}

// decodeClaims returns the token payload as a raw claims map. The signature
// has already been verified by the time this runs.
func decodeClaims(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token is not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode token payload: %w", err)
	}
	claims := make(map[string]any)
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parse token payload: %w", err)
	}
	return claims, nil
}
