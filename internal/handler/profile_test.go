package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/identity-hub/internal/model"
	"github.com/sakif/identity-hub/internal/nostr"
	"github.com/sakif/identity-hub/internal/service"
)

func okTestSigner() nostr.SignerFunc {
	return func(_ context.Context, event nostr.UnsignedEvent) (nostr.SignedEvent, error) {
		return nostr.SignedEvent{UnsignedEvent: event, ID: "evt-1", Sig: "sig-1"}, nil
	}
}

func linkNostrIdentity(t *testing.T, env *testEnv, cookie *http.Cookie, pubkey string) model.Identity {
	t.Helper()

	body := `{"pubkey":"` + pubkey + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/identities/nostr", bytes.NewBufferString(body))
	req.AddCookie(cookie)
	rr := env.do(env.profileH.HandleLinkNostr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var identity model.Identity
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&identity))
	return identity
}

func TestHandleGetProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	accountID, cookie := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(cookie)
	rr := env.do(env.profileH.HandleGetProfile, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var profile model.AggregatedProfile
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&profile))
	assert.Equal(t, accountID, profile.AccountID)

	// Anonymous login leaves one identity whose handle becomes the name.
	assert.True(t, strings.HasPrefix(profile.Attributes[model.AttrName], "anon-"))
}

func TestHandleGetProfileUnauthorized(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	rr := env.do(env.profileH.HandleGetProfile, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleLinkNostr(t *testing.T) {
	env := newTestEnv(t, nil)
	accountID, cookie := env.login(t)

	identity := linkNostrIdentity(t, env, cookie, "npub-abc")
	assert.Equal(t, accountID, identity.AccountID)
	assert.Equal(t, model.ProviderNostr, identity.Kind)
	assert.Equal(t, "npub-abc", identity.Pubkey)

	t.Run("empty pubkey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/identities/nostr", bytes.NewBufferString(`{"pubkey":""}`))
		req.AddCookie(cookie)
		rr := env.do(env.profileH.HandleLinkNostr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleUpdateProfile(t *testing.T) {
	env := newTestEnv(t, okTestSigner())
	_, cookie := env.login(t)
	linkNostrIdentity(t, env, cookie, "npub-abc")

	body := `{"name":"alice","about":"hi there"}`
	req := httptest.NewRequest(http.MethodPut, "/api/profile", bytes.NewBufferString(body))
	req.AddCookie(cookie)
	rr := env.do(env.profileH.HandleUpdateProfile, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var result service.ProfileUpdateResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	assert.Equal(t, "sig-1", result.Event.Sig)
	assert.Equal(t, nostr.KindProfileMetadata, result.Event.Kind)
	assert.Equal(t, "alice", result.Attributes[model.AttrName])
	assert.Equal(t, "hi there", result.Attributes[model.AttrAbout])
}

func TestHandleUpdateProfileWithoutSigner(t *testing.T) {
	env := newTestEnv(t, nil)
	_, cookie := env.login(t)
	linkNostrIdentity(t, env, cookie, "npub-abc")

	req := httptest.NewRequest(http.MethodPut, "/api/profile", bytes.NewBufferString(`{"name":"alice"}`))
	req.AddCookie(cookie)
	rr := env.do(env.profileH.HandleUpdateProfile, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "signer_error")
}

func TestHandleUpdateProfileWithoutNostrIdentity(t *testing.T) {
	env := newTestEnv(t, okTestSigner())
	_, cookie := env.login(t)

	req := httptest.NewRequest(http.MethodPut, "/api/profile", bytes.NewBufferString(`{"name":"alice"}`))
	req.AddCookie(cookie)
	rr := env.do(env.profileH.HandleUpdateProfile, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleUpdatePreferences(t *testing.T) {
	env := newTestEnv(t, nil)
	_, cookie := env.login(t)
	identity := linkNostrIdentity(t, env, cookie, "npub-abc")

	t.Run("success", func(t *testing.T) {
		body := `{"profileSource":"nostr","primaryProvider":"` + identity.ID + `"}`
		req := httptest.NewRequest(http.MethodPut, "/api/preferences", bytes.NewBufferString(body))
		req.AddCookie(cookie)
		rr := env.do(env.profileH.HandleUpdatePreferences, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("invalid source", func(t *testing.T) {
		body := `{"profileSource":"carrier-pigeon"}`
		req := httptest.NewRequest(http.MethodPut, "/api/preferences", bytes.NewBufferString(body))
		req.AddCookie(cookie)
		rr := env.do(env.profileH.HandleUpdatePreferences, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "validation_error")
	})

	t.Run("unowned primary provider", func(t *testing.T) {
		body := `{"primaryProvider":"not-my-identity"}`
		req := httptest.NewRequest(http.MethodPut, "/api/preferences", bytes.NewBufferString(body))
		req.AddCookie(cookie)
		rr := env.do(env.profileH.HandleUpdatePreferences, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
