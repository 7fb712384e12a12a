// Package api implements the gateway's HTTP handlers: identity-gated catalog
// proxies, the automation webhook proxy, and the trusted upload receiver.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"lumino-gateway/internal/auth"
	"lumino-gateway/internal/automation"
	"lumino-gateway/internal/cache"
	"lumino-gateway/internal/observability/metrics"
	"lumino-gateway/internal/storage"
)

// CatalogFetcher fetches the two upstream catalog payloads.
type CatalogFetcher interface {
	Voices(ctx context.Context) (json.RawMessage, error)
	Avatars(ctx context.Context) (json.RawMessage, error)
}

// AutomationForwarder delivers an enriched payload to the workflow webhook.
type AutomationForwarder interface {
	Forward(ctx context.Context, payload automation.Request) (automation.Response, error)
}

const defaultMaxUploadBytes = 10 << 20

// Handler carries the collaborators behind the gateway's endpoints.
type Handler struct {
	Verifier   auth.Verifier
	Secret     *auth.SecretGate
	Catalog    CatalogFetcher
	Automation AutomationForwarder
	Images     *storage.ImageStore
	Cache      *cache.Store
	Metrics    *metrics.Recorder
	Logger     *slog.Logger

	// MaxUploadBytes caps multipart upload request bodies; zero applies the
	// default of 10 MiB.
	MaxUploadBytes int64
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) metrics() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

// authenticate resolves the verified identity from the Authorization header.
// Every failure mode collapses to a 401 for the caller; the distinction
// between a bad credential and an unreachable provider survives in the
// returned error for logging.
func (h *Handler) authenticate(r *http.Request) (auth.Identity, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return auth.Identity{}, fmt.Errorf("%w: missing Authorization header", auth.ErrInvalidToken)
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return auth.Identity{}, fmt.Errorf("%w: Authorization header is not a bearer credential", auth.ErrInvalidToken)
	}
	return h.Verifier.Verify(r.Context(), strings.TrimSpace(token))
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrProviderUnavailable) {
		h.logger().Error("identity provider unreachable", "path", r.URL.Path, "error", err)
	} else {
		h.logger().Warn("rejected bearer credential", "path", r.URL.Path, "error", err)
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, fmt.Sprintf("invalid authorization token: %v", err))
}

// Root answers the unauthenticated landing probe.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "This is a public endpoint."})
}

// Me returns a greeting proving the caller's token resolved to an identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	identity, err := h.authenticate(r)
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Hello, %s! Your user id is %s.", identity.Email, identity.UID),
	})
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
