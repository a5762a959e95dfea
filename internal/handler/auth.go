package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/identity-hub/internal/auth"
	"github.com/sakif/identity-hub/internal/linkstate"
	"github.com/sakif/identity-hub/internal/service"
)

// AuthHandler owns every way into (and out of) a session: GitHub OAuth,
// email + password, anonymous, logout, and the "who am I" endpoint.
//
// ONE CALLBACK, TWO FLOWS:
// GitHub redirects to a single callback URL for both logging in and
// linking GitHub to an already-signed-in account. The state parameter
// disambiguates: a login carries a random single-use value we stashed in
// a cookie, a link attempt carries a decodeable state token naming the
// account that asked for it. HandleGitHubCallback tries the token
// interpretation first and falls back to the login interpretation.
type AuthHandler struct {
	github     *auth.GitHubProvider
	authSvc    *service.AuthService
	identities *service.IdentityService
	logger     *slog.Logger
}

func NewAuthHandler(
	github *auth.GitHubProvider,
	authSvc *service.AuthService,
	identities *service.IdentityService,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		github:     github,
		authSvc:    authSvc,
		identities: identities,
		logger:     logger,
	}
}

// setSessionCookie stores the JWT in an HttpOnly cookie.
// HttpOnly keeps it away from page scripts; SameSite=Lax keeps it off
// cross-site POSTs. Secure should be enabled behind HTTPS.
func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int((15 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// The random state value goes into a short-lived cookie; the callback
// verifies the round trip, which proves the flow started here and not on
// an attacker's page.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubLink starts attaching GitHub to the signed-in account.
//
// HTTP: GET /auth/github/link
// Auth: Required
//
// No random cookie here: the state is a token naming the account, and
// the callback compares it against the session instead.
func (h *AuthHandler) HandleGitHubLink(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	authURL, err := h.identities.BeginLink(accountID, "github")
	if err != nil {
		h.logger.Error("begin link failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes both GitHub flows.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
// Auth: Optional (a session must be present for the linking flow)
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: user denied authorization",
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	if _, err := linkstate.Decode(state); err == nil {
		h.completeLink(w, r, state, code)
		return
	}
	h.completeLogin(w, r, state, code)
}

// completeLogin is the plain "sign in with GitHub" leg of the callback.
func (h *AuthHandler) completeLogin(w http.ResponseWriter, r *http.Request, state, code string) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		h.logger.Warn("github callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	// Single use.
	clearCookie(w, "oauth_state")

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	result, err := h.authSvc.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("github callback: login failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	setSessionCookie(w, result.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// completeLink is the "attach GitHub to my account" leg of the callback.
// The session cookie, not the state, is the proof of who is asking.
func (h *AuthHandler) completeLink(w http.ResponseWriter, r *http.Request, state, code string) {
	sessionAccountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github link: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	if _, err := h.identities.CompleteLink(r.Context(), sessionAccountID, state, ghUser); err != nil {
		h.logger.Warn("github link: rejected", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.Redirect(w, r, "/?linked=github", http.StatusSeeOther)
}

// credentialsRequest is the body for email register and login.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates an email + password account.
//
// HTTP: POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	result, err := h.authSvc.RegisterEmail(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, result.Account)
}

// HandleLogin signs in with email + password.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	result, err := h.authSvc.LoginEmail(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, result.Account)
}

// nostrLoginRequest is the body for pubkey login.
type nostrLoginRequest struct {
	Pubkey string `json:"pubkey"`
}

// HandleNostrLogin signs in with a nostr public key asserted by the
// client-side signing agent.
//
// HTTP: POST /auth/nostr
func (h *AuthHandler) HandleNostrLogin(w http.ResponseWriter, r *http.Request) {
	var req nostrLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	result, err := h.authSvc.LoginNostr(r.Context(), req.Pubkey)
	if err != nil {
		writeError(w, err)
		return
	}

	setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, result.Account)
}

// HandleAnonymous creates a throwaway account and signs it in.
//
// HTTP: POST /auth/anonymous
func (h *AuthHandler) HandleAnonymous(w http.ResponseWriter, r *http.Request) {
	result, err := h.authSvc.LoginAnonymous(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, result.Account)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so logout is purely client-side: the
// token stays valid until its short expiry, but without the cookie the
// browser cannot present it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, "token")
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in account and its linked identities.
//
// HTTP: GET /api/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	account, err := h.authSvc.GetAccountByID(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	identities, err := h.identities.Identities(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":    account,
		"identities": identities,
	})
}
