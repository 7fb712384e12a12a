package api

import (
	"errors"
	"net/http"

	"lumino-gateway/internal/auth"
)

// SecretHeader carries the shared secret on server-to-server upload calls.
const SecretHeader = "X-N8N-Secret"

// UploadImage receives a multipart image from a trusted automation peer,
// stores it under the static directory, and returns its public URL. Access is
// gated by the shared secret header rather than a bearer token.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.Secret.Authorize(r.Header.Get(SecretHeader)); err != nil {
		h.metrics().ObserveUpload(false)
		if errors.Is(err, auth.ErrSecretNotConfigured) {
			h.logger().Error("upload rejected: shared secret not configured")
			writeDetail(w, http.StatusInternalServerError, "shared secret is not configured on the server")
			return
		}
		h.logger().Warn("upload rejected: shared secret mismatch", "remote", r.RemoteAddr)
		writeDetail(w, http.StatusForbidden, "access denied: invalid secret key")
		return
	}

	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		h.metrics().ObserveUpload(false)
		writeDetail(w, http.StatusBadRequest, "request body is not valid multipart form data")
		return
	}

	uid := r.FormValue("uid")
	if uid == "" {
		h.metrics().ObserveUpload(false)
		writeDetail(w, http.StatusBadRequest, "uid form field is required")
		return
	}
	file, header, err := r.FormFile("image_file")
	if err != nil {
		h.metrics().ObserveUpload(false)
		writeDetail(w, http.StatusBadRequest, "image_file form field is required")
		return
	}
	defer file.Close()

	asset, err := h.Images.Save(header.Filename, file)
	if err != nil {
		h.metrics().ObserveUpload(false)
		h.logger().Error("image store failed", "uid", uid, "error", err)
		writeDetail(w, http.StatusInternalServerError, "failed to store uploaded image")
		return
	}
	h.metrics().ObserveUpload(true)
	h.logger().Info("image stored", "uid", uid, "filename", asset.Filename)

	writeJSON(w, http.StatusOK, map[string]string{"imageUrl": asset.PublicURL})
}
