package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"lumino-gateway/internal/catalog"
	"lumino-gateway/internal/observability/metrics"
)

// Voices serves the cached upstream voice catalog to authenticated callers.
func (h *Handler) Voices(w http.ResponseWriter, r *http.Request) {
	h.serveCatalog(w, r, catalog.KindVoices, h.Catalog.Voices)
}

// Avatars serves the cached upstream avatar catalog to authenticated callers.
func (h *Handler) Avatars(w http.ResponseWriter, r *http.Request) {
	h.serveCatalog(w, r, catalog.KindAvatars, h.Catalog.Avatars)
}

func (h *Handler) serveCatalog(w http.ResponseWriter, r *http.Request, kind string, fetch func(context.Context) (json.RawMessage, error)) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	identity, err := h.authenticate(r)
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}

	if _, fresh := h.Cache.Peek(kind); fresh {
		h.metrics().ObserveCacheHit(kind)
	} else {
		h.metrics().ObserveCacheMiss(kind)
	}

	payload, err := h.Cache.GetOrRefresh(r.Context(), kind, func(ctx context.Context) (json.RawMessage, error) {
		data, fetchErr := fetch(ctx)
		if fetchErr != nil {
			h.metrics().ObserveUpstream("catalog", metrics.OutcomeError)
			return nil, fetchErr
		}
		h.metrics().ObserveUpstream("catalog", metrics.OutcomeSuccess)
		return data, nil
	})
	if err != nil {
		h.logger().Error("catalog fetch failed", "kind", kind, "uid", identity.UID, "error", err)
		writeDetail(w, http.StatusBadGateway, fmt.Sprintf("failed to fetch %s from upstream catalog: %v", kind, err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
