package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/auth"
	"github.com/xelth-com/modspace/internal/middleware"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Password string `json:"password"`
}

// login exchanges the access password for a session token. The token is
// returned and also set as a cookie for the browser shell.
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	if r.access.TokenSecret == "" {
		respondJSON(w, http.StatusOK, map[string]interface{}{"required": false})
		return
	}

	var loginReq LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&loginReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if !auth.CheckPasswordHash(loginReq.Password, r.access.PasswordHash) {
		r.log.Warn("🔒 login rejected", zap.String("remote", req.RemoteAddr))
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	now := time.Now()
	token, err := auth.GenerateToken(r.access.TokenSecret, r.access.TokenTTL, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(r.access.TokenTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"required":   true,
		"token":      token,
		"expires_at": now.Add(r.access.TokenTTL).UTC().Format(time.RFC3339),
	})
}

// logout drops the session cookie
func (r *Router) logout(w http.ResponseWriter, req *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
