package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/identity-hub/internal/apperror"
	"github.com/sakif/identity-hub/internal/model"
	"github.com/sakif/identity-hub/internal/preference"
)

// In-memory repository fakes. They implement the same contracts the
// sqlite package does (ownership checks, conflicts, upsert-refresh), but
// keep everything in maps so service tests need no database.

type fakeAccountRepo struct {
	accounts    map[string]*model.Account
	nextID      int
	prefUpdates int
	updateErr   error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*model.Account)}
}

func (r *fakeAccountRepo) CreateAccount(_ context.Context, account *model.Account) error {
	if account.ID == "" {
		r.nextID++
		account.ID = fmt.Sprintf("acct-%d", r.nextID)
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	clone := *account
	r.accounts[account.ID] = &clone
	return nil
}

func (r *fakeAccountRepo) GetAccountByID(_ context.Context, id string) (*model.Account, error) {
	account, ok := r.accounts[id]
	if !ok {
		return nil, apperror.NotFound("account", id)
	}
	clone := *account
	return &clone, nil
}

func (r *fakeAccountRepo) UpdateAccountPreferences(_ context.Context, accountID string, upd preference.Update) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	account, ok := r.accounts[accountID]
	if !ok {
		return apperror.NotFound("account", accountID)
	}
	r.prefUpdates++
	if upd.Source != nil {
		account.PreferredSource = *upd.Source
	}
	if upd.PrimaryProviderID != nil {
		account.PrimaryProviderID = *upd.PrimaryProviderID
	}
	account.UpdatedAt = time.Now()
	return nil
}

type fakeIdentityRepo struct {
	identities     []model.Identity
	nextID         int
	linkCalls      int
	metadataWrites int
	listErr        error
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{}
}

func (r *fakeIdentityRepo) find(match func(model.Identity) bool) *model.Identity {
	for i := range r.identities {
		if match(r.identities[i]) {
			return &r.identities[i]
		}
	}
	return nil
}

func (r *fakeIdentityRepo) LinkIdentity(_ context.Context, identity *model.Identity) error {
	r.linkCalls++

	var existing *model.Identity
	if identity.Pubkey != "" {
		existing = r.find(func(id model.Identity) bool { return id.Pubkey == identity.Pubkey })
	}
	if existing == nil && identity.ProviderUserID != "" {
		existing = r.find(func(id model.Identity) bool {
			return id.Kind == identity.Kind && id.ProviderUserID == identity.ProviderUserID
		})
	}

	if existing != nil {
		if existing.AccountID != identity.AccountID {
			return apperror.Conflict("identity", existing.ID)
		}
		existing.DisplayName = identity.DisplayName
		existing.Email = identity.Email
		existing.AvatarURL = identity.AvatarURL
		identity.ID = existing.ID
		identity.LinkedAt = existing.LinkedAt
		return nil
	}

	r.nextID++
	identity.ID = fmt.Sprintf("ident-%d", r.nextID)
	identity.LinkedAt = time.Now()
	r.identities = append(r.identities, *identity)
	return nil
}

func (r *fakeIdentityRepo) ListIdentitiesByAccount(_ context.Context, accountID string) ([]model.Identity, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.Identity
	for _, id := range r.identities {
		if id.AccountID == accountID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *fakeIdentityRepo) GetIdentityByProvider(_ context.Context, kind model.ProviderKind, providerUserID string) (*model.Identity, error) {
	existing := r.find(func(id model.Identity) bool {
		return id.Kind == kind && id.ProviderUserID == providerUserID
	})
	if existing == nil {
		return nil, apperror.NotFound("identity", providerUserID)
	}
	clone := *existing
	return &clone, nil
}

func (r *fakeIdentityRepo) GetIdentityByPubkey(_ context.Context, pubkey string) (*model.Identity, error) {
	existing := r.find(func(id model.Identity) bool { return id.Pubkey == pubkey })
	if existing == nil {
		return nil, apperror.NotFound("identity", pubkey)
	}
	clone := *existing
	return &clone, nil
}

func (r *fakeIdentityRepo) UpdateIdentityMetadata(_ context.Context, identityID, metadata string) error {
	existing := r.find(func(id model.Identity) bool { return id.ID == identityID })
	if existing == nil {
		return apperror.NotFound("identity", identityID)
	}
	existing.Metadata = metadata
	r.metadataWrites++
	return nil
}
