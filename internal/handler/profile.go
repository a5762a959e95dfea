package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/identity-hub/internal/auth"
	"github.com/sakif/identity-hub/internal/nostr"
	"github.com/sakif/identity-hub/internal/preference"
	"github.com/sakif/identity-hub/internal/service"
)

// ProfileHandler serves the aggregated profile, signed profile updates,
// and merge preferences. Every route here requires a session.
type ProfileHandler struct {
	identities *service.IdentityService
	logger     *slog.Logger
}

func NewProfileHandler(identities *service.IdentityService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{identities: identities, logger: logger}
}

// HandleGetProfile returns the merged profile view for the account.
//
// HTTP: GET /api/profile
// Auth: Required
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	profile, err := h.identities.AggregatedProfile(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdateProfile publishes a signed profile-metadata update.
//
// HTTP: PUT /api/profile
// Auth: Required
//
// BODY SEMANTICS — three states per attribute, not two:
//
//	{"name": "alice"}   set name
//	{"name": null}      clear name
//	{}                  touch nothing
//
// An attribute absent from the body is left exactly as it was; only a
// JSON null clears it. nostr.Updates preserves that distinction through
// decoding.
func (h *ProfileHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var updates nostr.Updates
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	result, err := h.identities.UpdateProfile(r.Context(), accountID, updates)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleUpdatePreferences updates the merge preferences.
//
// HTTP: PUT /api/preferences
// Auth: Required
func (h *ProfileHandler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var in preference.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	if err := h.identities.UpdatePreferences(r.Context(), accountID, in); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "preferences updated"})
}

// linkNostrRequest is the body for attaching a nostr identity.
type linkNostrRequest struct {
	Pubkey string `json:"pubkey"`
}

// HandleLinkNostr attaches a nostr public key to the account.
//
// HTTP: POST /api/identities/nostr
// Auth: Required
func (h *ProfileHandler) HandleLinkNostr(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req linkNostrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	identity, err := h.identities.LinkNostr(r.Context(), accountID, req.Pubkey)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, identity)
}
