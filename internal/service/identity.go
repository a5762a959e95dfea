package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sakif/identity-hub/internal/apperror"
	"github.com/sakif/identity-hub/internal/auth"
	"github.com/sakif/identity-hub/internal/linking"
	"github.com/sakif/identity-hub/internal/linkstate"
	"github.com/sakif/identity-hub/internal/model"
	"github.com/sakif/identity-hub/internal/nostr"
	"github.com/sakif/identity-hub/internal/preference"
	"github.com/sakif/identity-hub/internal/profile"
	"github.com/sakif/identity-hub/internal/repository"
)

// IdentityService orchestrates identity aggregation, account linking, and
// signed profile updates.
//
// DEPENDENCIES:
//   - repositories for accounts and identities
//   - the link URL builder (internal/linking)
//   - the signing coordinator plus whatever signer capability the
//     environment provided at startup (may be nil — that absence is a
//     legitimate state the coordinator reports, not a wiring bug)
type IdentityService struct {
	accounts    repository.AccountRepository
	identities  repository.IdentityRepository
	builder     *linking.Builder
	coordinator *nostr.Coordinator
	signer      nostr.Capability
	logger      *slog.Logger
}

func NewIdentityService(
	accounts repository.AccountRepository,
	identities repository.IdentityRepository,
	builder *linking.Builder,
	coordinator *nostr.Coordinator,
	signer nostr.Capability,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		accounts:    accounts,
		identities:  identities,
		builder:     builder,
		coordinator: coordinator,
		signer:      signer,
		logger:      logger,
	}
}

// AggregatedProfile returns the account's merged profile view.
//
// Each linked identity's fragment is fetched independently; a source that
// fails contributes nothing and the failure is logged, never fatal. The
// merge itself is the pure profile.Aggregate.
func (s *IdentityService) AggregatedProfile(ctx context.Context, accountID string) (*model.AggregatedProfile, error) {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: loading account %s: %w", accountID, err)
	}

	identities, err := s.identities.ListIdentitiesByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: listing identities for %s: %w", accountID, err)
	}

	fragments := make(map[string]model.Fragment, len(identities))
	for _, identity := range identities {
		frag, err := fragmentFor(identity)
		if err != nil {
			s.logger.Warn("profile fragment unavailable",
				slog.String("identityID", identity.ID),
				slog.String("kind", string(identity.Kind)),
				slog.String("error", err.Error()),
			)
			continue
		}
		fragments[identity.ID] = frag
	}

	aggregated := profile.Aggregate(accountID, identities, fragments, profile.Preference{
		Source:            account.PreferredSource,
		PrimaryProviderID: account.PrimaryProviderID,
	})

	return &aggregated, nil
}

// BeginLink builds the provider authorization URL that starts a link
// attempt for the authenticated account.
func (s *IdentityService) BeginLink(accountID string, provider model.ProviderKind) (string, error) {
	return s.builder.AuthorizationURL(accountID, provider)
}

// CompleteLink redeems a link state token at the OAuth callback and
// attaches the exchanged GitHub identity to the account.
//
// SESSION BINDING — THE CHECK THAT MAKES THE STATE TOKEN SAFE:
// The token itself is not integrity-protected, so it proves nothing on its
// own. The session account ID comes from the validated session cookie; a
// decoded token naming any other account is rejected with 403 before
// anything is linked. A token is consumed by exactly one redemption —
// the upsert is idempotent for the same account, and a replay from a
// different session fails this comparison.
func (s *IdentityService) CompleteLink(
	ctx context.Context,
	sessionAccountID string,
	rawState string,
	ghUser *auth.GitHubUser,
) (*model.Identity, error) {
	state, err := linkstate.Decode(rawState)
	if err != nil {
		return nil, err
	}

	if state.Action != linkstate.ActionLink {
		return nil, apperror.ValidationFailed("action",
			fmt.Sprintf("unexpected link state action %q", state.Action))
	}
	if model.ProviderKind(state.Provider) != model.ProviderGitHub {
		return nil, apperror.ValidationFailed("provider",
			fmt.Sprintf("unexpected link state provider %q", state.Provider))
	}
	if state.AccountID != sessionAccountID {
		s.logger.Warn("link state does not match session",
			slog.String("stateAccountID", state.AccountID),
			slog.String("sessionAccountID", sessionAccountID),
		)
		return nil, apperror.Forbidden("link state was issued for a different account")
	}

	if ghUser == nil {
		return nil, fmt.Errorf("service/identity: GitHub user must not be nil")
	}

	identity := &model.Identity{
		AccountID:      sessionAccountID,
		Kind:           model.ProviderGitHub,
		ProviderUserID: fmt.Sprintf("%d", ghUser.ID),
		DisplayName:    displayNameFor(ghUser),
		Email:          ghUser.Email,
		AvatarURL:      ghUser.AvatarURL,
	}
	if err := s.identities.LinkIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("service/identity: linking GitHub identity: %w", err)
	}

	s.logger.Info("identity linked",
		slog.String("accountID", sessionAccountID),
		slog.String("kind", string(model.ProviderGitHub)),
		slog.String("identityID", identity.ID),
	)

	return identity, nil
}

// ProfileUpdateResult is what a successful signed profile update returns:
// the signed event ready for relay publication (by an external publisher)
// and the resulting attribute bag for immediate local display.
type ProfileUpdateResult struct {
	Event      nostr.SignedEvent `json:"event"`
	Attributes model.Fragment    `json:"attributes"`
}

// UpdateProfile builds, signs, and locally records a profile-metadata
// update for the account's nostr identity.
//
// Ordering matters: nothing is persisted until the signature is in hand.
// If the signer rejects, or the request is canceled mid-signature, local
// state is untouched — no partial update is ever written.
func (s *IdentityService) UpdateProfile(
	ctx context.Context,
	accountID string,
	updates nostr.Updates,
) (*ProfileUpdateResult, error) {
	identities, err := s.identities.ListIdentitiesByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: listing identities for %s: %w", accountID, err)
	}

	var nostrIdentity *model.Identity
	var fallbackName, fallbackPicture string
	for i := range identities {
		switch identities[i].Kind {
		case model.ProviderNostr:
			nostrIdentity = &identities[i]
		case model.ProviderGitHub:
			// OAuth profile fills first-population gaps in the event.
			if fallbackName == "" {
				fallbackName = identities[i].DisplayName
			}
			if fallbackPicture == "" {
				fallbackPicture = identities[i].AvatarURL
			}
		}
	}

	if nostrIdentity == nil {
		return nil, &apperror.AppError{
			Err:     fmt.Errorf("%w: %w", apperror.ErrValidation, nostr.ErrMissingIdentity),
			Message: "a nostr identity is required to publish a profile update",
		}
	}

	current, err := fragmentFor(*nostrIdentity)
	if err != nil {
		// A corrupt cache must not block the user from publishing a fresh
		// profile; start from an empty bag.
		s.logger.Warn("ignoring unreadable cached metadata",
			slog.String("identityID", nostrIdentity.ID),
			slog.String("error", err.Error()),
		)
		current = model.Fragment{}
	}

	unsigned, err := s.coordinator.PrepareUpdate(current, nostrIdentity.Pubkey, fallbackName, fallbackPicture, updates)
	if err != nil {
		return nil, err
	}

	signed, err := s.coordinator.RequestSignature(ctx, unsigned, s.signer)
	if err != nil {
		return nil, err
	}

	if err := s.identities.UpdateIdentityMetadata(ctx, nostrIdentity.ID, signed.Content); err != nil {
		return nil, fmt.Errorf("service/identity: caching signed metadata: %w", err)
	}

	var attributes model.Fragment
	if err := json.Unmarshal([]byte(signed.Content), &attributes); err != nil {
		return nil, fmt.Errorf("service/identity: reading signed content: %w", err)
	}

	return &ProfileUpdateResult{Event: signed, Attributes: attributes}, nil
}

// UpdatePreferences validates and applies a preference update.
// An invalid input never reaches storage; an input with nothing to change
// skips the write entirely.
func (s *IdentityService) UpdatePreferences(ctx context.Context, accountID string, in preference.Input) error {
	validated, err := preference.Validate(in)
	if err != nil {
		return err
	}

	upd := preference.BuildUpdate(validated)
	if upd.Empty() {
		return nil
	}

	if err := s.accounts.UpdateAccountPreferences(ctx, accountID, upd); err != nil {
		return fmt.Errorf("service/identity: updating preferences for %s: %w", accountID, err)
	}

	s.logger.Info("preferences updated", slog.String("accountID", accountID))
	return nil
}

// LinkNostr attaches a nostr identity (by public key) to the account.
// Proof of key control is the client-side signer's concern: the pubkey
// arrives from the same NIP-07-style agent that will sign profile
// updates, and a mismatched agent simply produces unusable signatures.
func (s *IdentityService) LinkNostr(ctx context.Context, accountID, pubkey string) (*model.Identity, error) {
	if pubkey == "" {
		return nil, apperror.ValidationFailed("pubkey", "a public key is required")
	}

	identity := &model.Identity{
		AccountID: accountID,
		Kind:      model.ProviderNostr,
		Pubkey:    pubkey,
	}
	if err := s.identities.LinkIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("service/identity: linking nostr identity: %w", err)
	}

	s.logger.Info("identity linked",
		slog.String("accountID", accountID),
		slog.String("kind", string(model.ProviderNostr)),
	)

	return identity, nil
}

// Identities lists the account's linked identities.
func (s *IdentityService) Identities(ctx context.Context, accountID string) ([]model.Identity, error) {
	identities, err := s.identities.ListIdentitiesByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: listing identities for %s: %w", accountID, err)
	}
	return identities, nil
}
