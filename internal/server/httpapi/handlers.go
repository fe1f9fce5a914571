package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/qr"
)

type TokenHandler struct {
	tokens TokenIssuer
	log    logging.Logger
}

type tokenResponse struct {
	Payload     string `json:"payload"`
	WindowID    int64  `json:"window_id"`
	WindowStart int64  `json:"window_start"`
	WindowEnd   int64  `json:"window_end"`
}

type healthResponse struct {
	Status   string `json:"status"`
	WindowMs int64  `json:"window_ms"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", WindowMs: qr.WindowSize.Milliseconds()})
}

// Token returns the payload the caller's device should display now.
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	payload, win, err := h.tokens.CurrentToken(r.Context(), claims.PrincipalID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			writeError(w, http.StatusNotFound, "not_found", "principal is not enrolled")
		case errors.Is(err, common.ErrorForbidden):
			writeError(w, http.StatusForbidden, "forbidden", "principal is suspended")
		default:
			h.log.Error(r.Context(), "token issue failed", "principal_id", claims.PrincipalID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "")
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		Payload:     payload,
		WindowID:    win.ID,
		WindowStart: win.Start,
		WindowEnd:   win.End,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, description string) {
	writeJSON(w, code, errorResponse{Error: kind, ErrorDescription: description})
}
