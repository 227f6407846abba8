package auth

import (
	"encoding/json"
	"net/http"
)

// DevHandler mints tokens for local development. Never registered
// outside dev mode — token issuing belongs to the external identity
// provider in production.
type DevHandler struct {
	tokens *TokenService
}

func NewDevHandler(tokens *TokenService) *DevHandler {
	return &DevHandler{tokens: tokens}
}

// RegisterDevRoutes registers the dev token endpoint on the public mux.
func (h *DevHandler) RegisterDevRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/dev/token", h.handleDevToken)
}

type devTokenRequest struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
	Tenant  string   `json:"tenant"`
	StepUp  bool     `json:"step_up"`
}

func (h *DevHandler) handleDevToken(w http.ResponseWriter, r *http.Request) {
	var req devTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" {
		writeAuthError(w, http.StatusBadRequest, "subject is required")
		return
	}

	token, err := h.tokens.CreateAccessToken(&Principal{
		Subject: req.Subject,
		Roles:   req.Roles,
		Tenant:  req.Tenant,
		StepUp:  req.StepUp,
	})
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, "token creation failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"access_token": token})
}
