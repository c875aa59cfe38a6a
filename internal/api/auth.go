package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-valve/internal/auth"
)

// tokenRequest is the body of POST /auth/token.
type tokenRequest struct {
	Passkey string `json:"passkey"`
}

// tokenResponse is returned on a successful passkey exchange.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	ExpiresAt   string `json:"expires_at"`
}

// handleToken exchanges the device passkey for a bearer token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Passkey == "" {
		writeBadRequest(w, "passkey is required")
		return
	}

	token, expiresAt, err := s.auth.Login(req.Passkey)
	switch {
	case errors.Is(err, auth.ErrPasskeyMismatch):
		s.logger.Warn("token request with wrong passkey", "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid passkey")
		return
	case errors.Is(err, auth.ErrNotConfigured):
		writeUnavailable(w, "authentication not configured")
		return
	case err != nil:
		s.logger.Error("issuing token failed", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	})
}

// claimsFrom returns the claims authMiddleware attached to the request.
func claimsFrom(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(ctxKeyClaims).(*auth.Claims) //nolint:errcheck // nil on unauthenticated routes
	return c
}
