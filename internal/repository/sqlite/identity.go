package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/identity-hub/internal/apperror"
	"github.com/sakif/identity-hub/internal/model"
	"github.com/sakif/identity-hub/internal/repository"
)

// compile-time check that *DB implements repository.IdentityRepository
var _ repository.IdentityRepository = (*DB)(nil)

const identityColumns = `id, account_id, kind, provider_user_id, pubkey,
	display_name, email, avatar_url, metadata, password_hash, linked_at`

// LinkIdentity inserts a new linked identity or refreshes the cached
// profile columns of an existing one.
//
// UPSERT KEYED ON THE EXTERNAL IDENTIFIER:
// The external identifier — (kind, provider_user_id) for provider-issued
// identities, pubkey for nostr — is stable, so re-linking the same
// external identity to the same account just refreshes the cached profile
// columns and keeps the internal ID. The same external identity linked to
// a DIFFERENT account is a conflict, surfaced so the handler can tell the
// user to unlink it there first.
func (db *DB) LinkIdentity(ctx context.Context, identity *model.Identity) error {
	existing, err := db.findLinked(ctx, identity)
	if err != nil {
		return err
	}

	if existing != nil {
		if existing.AccountID != identity.AccountID {
			return apperror.Conflict("identity", existing.ID)
		}
		// Already linked to this account — refresh the cached profile.
		identity.ID = existing.ID
		identity.LinkedAt = existing.LinkedAt
		_, err = db.conn.ExecContext(ctx,
			`UPDATE identities SET display_name = ?, email = ?, avatar_url = ?
			 WHERE id = ?`,
			identity.DisplayName, identity.Email, identity.AvatarURL, identity.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: refreshing identity %s: %w", identity.ID, err)
		}
		return nil
	}

	identity.ID = xid.New().String()
	identity.LinkedAt = time.Now()

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.ID,
		identity.AccountID,
		string(identity.Kind),
		identity.ProviderUserID,
		identity.Pubkey,
		identity.DisplayName,
		identity.Email,
		identity.AvatarURL,
		identity.Metadata,
		identity.PasswordHash,
		identity.LinkedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting identity (kind=%s): %w", identity.Kind, err)
	}

	return nil
}

// findLinked looks up an existing row for the same external identifier.
// Returns (nil, nil) when none exists — anonymous identities have no
// external identifier and always insert fresh.
func (db *DB) findLinked(ctx context.Context, identity *model.Identity) (*model.Identity, error) {
	switch {
	case identity.Pubkey != "":
		found, err := db.GetIdentityByPubkey(ctx, identity.Pubkey)
		return notFoundAsNil(found, err)
	case identity.ProviderUserID != "":
		found, err := db.GetIdentityByProvider(ctx, identity.Kind, identity.ProviderUserID)
		return notFoundAsNil(found, err)
	default:
		return nil, nil
	}
}

func notFoundAsNil(identity *model.Identity, err error) (*model.Identity, error) {
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return identity, nil
}

// ListIdentitiesByAccount returns all identities linked to an account,
// oldest link first.
func (db *DB) ListIdentitiesByAccount(ctx context.Context, accountID string) ([]model.Identity, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities
		 WHERE account_id = ? ORDER BY linked_at, id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing identities for %s: %w", accountID, err)
	}
	defer rows.Close()

	var identities []model.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating identities: %w", err)
	}

	return identities, nil
}

// GetIdentityByProvider retrieves an identity by its provider-scoped
// external ID.
func (db *DB) GetIdentityByProvider(ctx context.Context, kind model.ProviderKind, providerUserID string) (*model.Identity, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities
		 WHERE kind = ? AND provider_user_id = ?`,
		string(kind), providerUserID,
	)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("identity", fmt.Sprintf("%s/%s", kind, providerUserID))
	}
	return identity, err
}

// GetIdentityByPubkey retrieves a nostr identity by public key.
func (db *DB) GetIdentityByPubkey(ctx context.Context, pubkey string) (*model.Identity, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE pubkey = ?`,
		pubkey,
	)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("identity", pubkey)
	}
	return identity, err
}

// UpdateIdentityMetadata replaces the cached kind-0 content of an identity.
func (db *DB) UpdateIdentityMetadata(ctx context.Context, identityID, metadata string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE identities SET metadata = ? WHERE id = ?`,
		metadata, identityID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating identity metadata %s: %w", identityID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("identity", identityID)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(s scanner) (*model.Identity, error) {
	var i model.Identity
	var kind string

	err := s.Scan(
		&i.ID,
		&i.AccountID,
		&kind,
		&i.ProviderUserID,
		&i.Pubkey,
		&i.DisplayName,
		&i.Email,
		&i.AvatarURL,
		&i.Metadata,
		&i.PasswordHash,
		&i.LinkedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err // callers translate to a resource-specific not-found
		}
		return nil, fmt.Errorf("sqlite: scanning identity: %w", err)
	}

	i.Kind = model.ProviderKind(kind)
	return &i, nil
}
