// Package repository declares the storage interfaces the service layer
// depends on. Concrete implementations live in subpackages (sqlite); the
// service never imports those directly, which keeps the storage backend
// swappable and the services testable with in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/identity-hub/internal/model"
	"github.com/sakif/identity-hub/internal/preference"
)

// AccountRepository persists platform accounts and their preference fields.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)

	// UpdateAccountPreferences applies a preference.Update to the account.
	// Implementations must enforce the ownership invariant: a primary
	// provider ID that does not reference an identity owned by this
	// account is rejected, never written.
	UpdateAccountPreferences(ctx context.Context, accountID string, upd preference.Update) error
}

// IdentityRepository persists linked identities.
type IdentityRepository interface {
	// LinkIdentity inserts the identity, or refreshes its cached profile
	// columns when the same (kind, provider user id / pubkey) is already
	// linked to the same account. Linking an identity that belongs to a
	// different account is a conflict.
	LinkIdentity(ctx context.Context, identity *model.Identity) error

	ListIdentitiesByAccount(ctx context.Context, accountID string) ([]model.Identity, error)
	GetIdentityByProvider(ctx context.Context, kind model.ProviderKind, providerUserID string) (*model.Identity, error)
	GetIdentityByPubkey(ctx context.Context, pubkey string) (*model.Identity, error)

	// UpdateIdentityMetadata replaces the cached profile-metadata content
	// of a nostr identity after a successfully signed update.
	UpdateIdentityMetadata(ctx context.Context, identityID, metadata string) error
}
