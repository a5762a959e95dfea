package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/identity-hub/internal/apperror"
	"github.com/sakif/identity-hub/internal/auth"
	"github.com/sakif/identity-hub/internal/linking"
	"github.com/sakif/identity-hub/internal/linkstate"
	"github.com/sakif/identity-hub/internal/model"
	"github.com/sakif/identity-hub/internal/nostr"
	"github.com/sakif/identity-hub/internal/preference"
)

func newTestIdentityService(t *testing.T, signer nostr.Capability) (*IdentityService, *fakeAccountRepo, *fakeIdentityRepo) {
	t.Helper()

	accounts := newFakeAccountRepo()
	identities := newFakeIdentityRepo()
	builder := linking.NewBuilder(linking.ProviderConfig{
		ClientID:    "test-client-id",
		CallbackURL: "https://app.example.com/auth/github/callback",
	})
	svc := NewIdentityService(accounts, identities, builder, nostr.NewCoordinator(testLogger()), signer, testLogger())
	return svc, accounts, identities
}

func seedAccount(t *testing.T, accounts *fakeAccountRepo) *model.Account {
	t.Helper()
	account := &model.Account{}
	if err := accounts.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return account
}

func seedIdentity(t *testing.T, identities *fakeIdentityRepo, identity *model.Identity) *model.Identity {
	t.Helper()
	if err := identities.LinkIdentity(context.Background(), identity); err != nil {
		t.Fatalf("LinkIdentity: %v", err)
	}
	return identity
}

func okSigner() nostr.SignerFunc {
	return func(_ context.Context, event nostr.UnsignedEvent) (nostr.SignedEvent, error) {
		return nostr.SignedEvent{UnsignedEvent: event, ID: "evt-1", Sig: "sig-1"}, nil
	}
}

func TestAggregatedProfileMergesSources(t *testing.T) {
	svc, accounts, identities := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)

	seedIdentity(t, identities, &model.Identity{
		AccountID: account.ID,
		Kind:      model.ProviderNostr,
		Pubkey:    "npub-abc",
		Metadata:  `{"name":"nostr-name","about":"hello from nostr"}`,
	})
	seedIdentity(t, identities, &model.Identity{
		AccountID:      account.ID,
		Kind:           model.ProviderGitHub,
		ProviderUserID: "42",
		DisplayName:    "GH Name",
		AvatarURL:      "https://example.com/gh.png",
	})

	profile, err := svc.AggregatedProfile(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("AggregatedProfile: %v", err)
	}

	// Unset preference, so the fixed order puts nostr first; the avatar
	// only exists on the GitHub side and fills the gap.
	if got := profile.Attributes[model.AttrName]; got != "nostr-name" {
		t.Errorf("name = %q, want the nostr value", got)
	}
	if got := profile.Attributes[model.AttrAbout]; got != "hello from nostr" {
		t.Errorf("about = %q, want the nostr value", got)
	}
	if got := profile.Attributes[model.AttrPicture]; got != "https://example.com/gh.png" {
		t.Errorf("picture = %q, want the GitHub avatar", got)
	}
}

func TestAggregatedProfileToleratesBadFragment(t *testing.T) {
	svc, accounts, identities := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)

	seedIdentity(t, identities, &model.Identity{
		AccountID: account.ID,
		Kind:      model.ProviderNostr,
		Pubkey:    "npub-abc",
		Metadata:  `{not json`,
	})
	seedIdentity(t, identities, &model.Identity{
		AccountID:      account.ID,
		Kind:           model.ProviderGitHub,
		ProviderUserID: "42",
		DisplayName:    "GH Name",
	})

	profile, err := svc.AggregatedProfile(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("AggregatedProfile: %v", err)
	}
	if got := profile.Attributes[model.AttrName]; got != "GH Name" {
		t.Errorf("name = %q, want the surviving GitHub value", got)
	}
}

func TestAggregatedProfileUnknownAccount(t *testing.T) {
	svc, _, _ := newTestIdentityService(t, nil)

	_, err := svc.AggregatedProfile(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestBeginLinkEmbedsState(t *testing.T) {
	svc, accounts, _ := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)

	rawURL, err := svc.BeginLink(account.ID, model.ProviderGitHub)
	if err != nil {
		t.Fatalf("BeginLink: %v", err)
	}
	if !strings.Contains(rawURL, "github.com/login/oauth/authorize") {
		t.Errorf("url = %q, want the GitHub authorize endpoint", rawURL)
	}
}

func TestCompleteLink(t *testing.T) {
	svc, accounts, identities := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)

	state, err := linkstate.Encode(linkstate.Token{
		AccountID: account.ID,
		Action:    linkstate.ActionLink,
		Provider:  string(model.ProviderGitHub),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	identity, err := svc.CompleteLink(context.Background(), account.ID, state, &auth.GitHubUser{
		ID:        42,
		Login:     "octocat",
		AvatarURL: "https://example.com/octo.png",
	})
	if err != nil {
		t.Fatalf("CompleteLink: %v", err)
	}
	if identity.AccountID != account.ID {
		t.Errorf("linked to account %s, want %s", identity.AccountID, account.ID)
	}
	if len(identities.identities) != 1 {
		t.Errorf("identities linked = %d, want 1", len(identities.identities))
	}
}

func TestCompleteLinkRejectsForeignState(t *testing.T) {
	svc, accounts, identities := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)

	state, err := linkstate.Encode(linkstate.Token{
		AccountID: "someone-else",
		Action:    linkstate.ActionLink,
		Provider:  string(model.ProviderGitHub),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = svc.CompleteLink(context.Background(), account.ID, state, &auth.GitHubUser{ID: 42, Login: "octocat"})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("got %v, want forbidden", err)
	}
	if identities.linkCalls != 0 {
		t.Errorf("linkCalls = %d, want 0 after a rejected state", identities.linkCalls)
	}
}

func TestCompleteLinkRejectsMalformedState(t *testing.T) {
	svc, accounts, _ := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)

	_, err := svc.CompleteLink(context.Background(), account.ID, "!!not-a-token!!", &auth.GitHubUser{ID: 42})
	if !errors.Is(err, apperror.ErrDecode) {
		t.Errorf("got %v, want decode error", err)
	}
}

func TestUpdateProfileSignsAndCaches(t *testing.T) {
	var signedCalls int
	signer := nostr.SignerFunc(func(_ context.Context, event nostr.UnsignedEvent) (nostr.SignedEvent, error) {
		signedCalls++
		return nostr.SignedEvent{UnsignedEvent: event, ID: "evt-1", Sig: "sig-1"}, nil
	})

	svc, accounts, identities := newTestIdentityService(t, signer)
	account := seedAccount(t, accounts)
	nostrIdentity := seedIdentity(t, identities, &model.Identity{
		AccountID: account.ID,
		Kind:      model.ProviderNostr,
		Pubkey:    "npub-abc",
		Metadata:  `{"name":"old-name","about":"keep me"}`,
	})

	updates := nostr.Updates{}
	if err := json.Unmarshal([]byte(`{"name":"new-name","about":null}`), &updates); err != nil {
		t.Fatalf("decoding updates: %v", err)
	}

	result, err := svc.UpdateProfile(context.Background(), account.ID, updates)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	if signedCalls != 1 {
		t.Errorf("signer called %d times, want 1", signedCalls)
	}
	if result.Attributes[model.AttrName] != "new-name" {
		t.Errorf("name = %q, want new-name", result.Attributes[model.AttrName])
	}
	if _, ok := result.Attributes[model.AttrAbout]; ok {
		t.Error("about should have been cleared")
	}
	if identities.metadataWrites != 1 {
		t.Errorf("metadata writes = %d, want 1", identities.metadataWrites)
	}

	cached := identities.find(func(id model.Identity) bool { return id.ID == nostrIdentity.ID })
	if cached == nil || cached.Metadata != result.Event.Content {
		t.Error("cached metadata does not match the signed content")
	}
}

func TestUpdateProfileWithoutSigner(t *testing.T) {
	svc, accounts, identities := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)
	seedIdentity(t, identities, &model.Identity{
		AccountID: account.ID,
		Kind:      model.ProviderNostr,
		Pubkey:    "npub-abc",
	})

	updates := nostr.Updates{}
	if err := json.Unmarshal([]byte(`{"name":"new-name"}`), &updates); err != nil {
		t.Fatalf("decoding updates: %v", err)
	}

	_, err := svc.UpdateProfile(context.Background(), account.ID, updates)
	if !errors.Is(err, nostr.ErrSignerUnavailable) {
		t.Errorf("got %v, want signer unavailable", err)
	}
	if identities.metadataWrites != 0 {
		t.Errorf("metadata writes = %d, want 0 when signing never happened", identities.metadataWrites)
	}
}

func TestUpdateProfileRejectionPersistsNothing(t *testing.T) {
	signer := nostr.SignerFunc(func(context.Context, nostr.UnsignedEvent) (nostr.SignedEvent, error) {
		return nostr.SignedEvent{}, errors.New("user closed the prompt")
	})

	svc, accounts, identities := newTestIdentityService(t, signer)
	account := seedAccount(t, accounts)
	seedIdentity(t, identities, &model.Identity{
		AccountID: account.ID,
		Kind:      model.ProviderNostr,
		Pubkey:    "npub-abc",
		Metadata:  `{"name":"old-name"}`,
	})

	updates := nostr.Updates{}
	if err := json.Unmarshal([]byte(`{"name":"new-name"}`), &updates); err != nil {
		t.Fatalf("decoding updates: %v", err)
	}

	_, err := svc.UpdateProfile(context.Background(), account.ID, updates)
	if !errors.Is(err, nostr.ErrSigningRejected) {
		t.Errorf("got %v, want signing rejected", err)
	}
	if identities.metadataWrites != 0 {
		t.Errorf("metadata writes = %d, want 0 after a rejection", identities.metadataWrites)
	}
}

func TestUpdateProfileRequiresNostrIdentity(t *testing.T) {
	svc, accounts, identities := newTestIdentityService(t, okSigner())
	account := seedAccount(t, accounts)
	seedIdentity(t, identities, &model.Identity{
		AccountID:      account.ID,
		Kind:           model.ProviderGitHub,
		ProviderUserID: "42",
	})

	updates := nostr.Updates{}
	if err := json.Unmarshal([]byte(`{"name":"new-name"}`), &updates); err != nil {
		t.Fatalf("decoding updates: %v", err)
	}

	_, err := svc.UpdateProfile(context.Background(), account.ID, updates)
	if !errors.Is(err, nostr.ErrMissingIdentity) {
		t.Errorf("got %v, want missing identity", err)
	}
}

func TestUpdatePreferences(t *testing.T) {
	svc, accounts, identities := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)
	nostrIdentity := seedIdentity(t, identities, &model.Identity{
		AccountID: account.ID,
		Kind:      model.ProviderNostr,
		Pubkey:    "npub-abc",
	})

	err := svc.UpdatePreferences(context.Background(), account.ID, preference.Input{
		ProfileSource:   "nostr",
		PrimaryProvider: nostrIdentity.ID,
	})
	if err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}

	stored, err := accounts.GetAccountByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if stored.PreferredSource != model.SourceNostr {
		t.Errorf("preferred source = %q, want nostr", stored.PreferredSource)
	}
	if stored.PrimaryProviderID != nostrIdentity.ID {
		t.Errorf("primary provider = %q, want %q", stored.PrimaryProviderID, nostrIdentity.ID)
	}
}

func TestUpdatePreferencesInvalidSourceNeverStored(t *testing.T) {
	svc, accounts, _ := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)

	err := svc.UpdatePreferences(context.Background(), account.ID, preference.Input{
		ProfileSource: "carrier-pigeon",
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("got %v, want validation error", err)
	}
	if accounts.prefUpdates != 0 {
		t.Errorf("storage writes = %d, want 0 for invalid input", accounts.prefUpdates)
	}
}

func TestUpdatePreferencesEmptyInputSkipsWrite(t *testing.T) {
	svc, accounts, _ := newTestIdentityService(t, nil)
	account := seedAccount(t, accounts)

	if err := svc.UpdatePreferences(context.Background(), account.ID, preference.Input{}); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
	if accounts.prefUpdates != 0 {
		t.Errorf("storage writes = %d, want 0 when nothing was provided", accounts.prefUpdates)
	}
}
