package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"lumino-gateway/internal/automation"
	"lumino-gateway/internal/observability/metrics"
)

// automationBody is the client-facing payload for the workflow proxy. Unknown
// fields are ignored, so a client-supplied uid is silently dropped before the
// outgoing request is built.
type automationBody struct {
	Message     string `json:"message"`
	BotID       string `json:"botId"`
	AvatarID    string `json:"avatarId"`
	VoiceID     string `json:"voiceId"`
	VideoWidth  int    `json:"videoWidth"`
	VideoHeight int    `json:"videoHeight"`
	Type        string `json:"type"`
}

// Automate forwards a chat command to the workflow webhook on behalf of the
// verified caller and relays the webhook's reply verbatim.
func (h *Handler) Automate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	identity, err := h.authenticate(r)
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}

	var body automationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if body.Message == "" || body.BotID == "" || body.Type == "" {
		writeDetail(w, http.StatusBadRequest, "message, botId, and type are required")
		return
	}

	resp, err := h.Automation.Forward(r.Context(), automation.Request{
		Message:     body.Message,
		BotID:       body.BotID,
		AvatarID:    body.AvatarID,
		VoiceID:     body.VoiceID,
		VideoWidth:  body.VideoWidth,
		VideoHeight: body.VideoHeight,
		Type:        body.Type,
		UID:         identity.UID,
	})
	if err != nil {
		if errors.Is(err, automation.ErrTimeout) {
			h.metrics().ObserveUpstream("n8n", metrics.OutcomeTimeout)
			h.logger().Error("workflow webhook timed out", "uid", identity.UID, "error", err)
			writeDetail(w, http.StatusGatewayTimeout, fmt.Sprintf("workflow service did not respond in time: %v", err))
			return
		}
		h.metrics().ObserveUpstream("n8n", metrics.OutcomeError)
		h.logger().Error("workflow webhook failed", "uid", identity.UID, "error", err)
		writeDetail(w, http.StatusBadGateway, fmt.Sprintf("failed to reach workflow service: %v", err))
		return
	}
	h.metrics().ObserveUpstream("n8n", metrics.OutcomeSuccess)

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}
