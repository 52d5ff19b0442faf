package api

import (
	"net/http"

	"github.com/relaybase/relaybase/internal/auth"
	"github.com/relaybase/relaybase/internal/log"
)

// authHandler serves token verification and frontend bootstrap config.
type authHandler struct {
	verifier tokenVerifier
	// Identity provider details handed to the frontend so it can run
	// its own login flow. The anon key is public by design.
	identityURL     string
	identityAnonKey string
	logger          log.Logger
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid bool         `json:"valid"`
	User  *auth.Claims `json:"user,omitempty"`
	Error string       `json:"error,omitempty"`
}

// verify checks a token handed in the body. Invalid tokens are a normal
// outcome here, so the response is always 200 with valid=false rather
// than an error status.
func (h *authHandler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeJSON(w, h.logger, http.StatusOK, verifyResponse{Valid: false, Error: "token is required"})
		return
	}

	claims, err := h.verifier.Verify(req.Token)
	if err != nil {
		writeJSON(w, h.logger, http.StatusOK, verifyResponse{Valid: false, Error: "invalid or expired token"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, verifyResponse{Valid: true, User: claims})
}

// me returns the identity of the bearer token on the request.
func (h *authHandler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, claims)
}

// config exposes the identity provider settings the frontend needs to
// start a login flow. Unauthenticated.
func (h *authHandler) config(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"url":        h.identityURL,
		"anon_key":   h.identityAnonKey,
		"configured": h.identityURL != "",
	})
}
