package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/identity-hub/internal/apperror"
	"github.com/sakif/identity-hub/internal/model"
	"github.com/sakif/identity-hub/internal/preference"
	"github.com/sakif/identity-hub/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

// CreateAccount inserts a new account, generating its ID and timestamps.
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	now := time.Now()
	account.ID = xid.New().String()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, preferred_source, primary_provider_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		account.ID,
		string(account.PreferredSource),
		account.PrimaryProviderID,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting account: %w", err)
	}

	return nil
}

// GetAccountByID retrieves an account by its internal ID.
// Returns apperror.ErrNotFound if no account exists with that ID.
func (db *DB) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	var source string

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, preferred_source, primary_provider_id, created_at, updated_at
		 FROM accounts WHERE id = ?`,
		id,
	).Scan(&a.ID, &source, &a.PrimaryProviderID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", id)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", id, err)
	}

	a.PreferredSource = model.ProfileSource(source)
	return &a, nil
}

// UpdateAccountPreferences applies a preference update to the account.
//
// OWNERSHIP INVARIANT:
// If the update sets a primary provider, the referenced identity must be
// owned by this account. The check and the write run in one transaction so
// a concurrent unlink can't slip an orphaned reference in.
func (db *DB) UpdateAccountPreferences(ctx context.Context, accountID string, upd preference.Update) error {
	if upd.Empty() {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning preference update: %w", err)
	}
	defer tx.Rollback()

	if upd.PrimaryProviderID != nil {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT account_id FROM identities WHERE id = ?`, *upd.PrimaryProviderID,
		).Scan(&owner)
		if err == sql.ErrNoRows {
			return apperror.NotFound("identity", *upd.PrimaryProviderID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: checking identity owner: %w", err)
		}
		if owner != accountID {
			return apperror.Forbidden("primary provider must be one of the account's own identities")
		}
	}

	if upd.Source != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET preferred_source = ?, updated_at = ? WHERE id = ?`,
			string(*upd.Source), time.Now(), accountID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating preferred source: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("account", accountID)
		}
	}

	if upd.PrimaryProviderID != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET primary_provider_id = ?, updated_at = ? WHERE id = ?`,
			*upd.PrimaryProviderID, time.Now(), accountID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating primary provider: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("account", accountID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing preference update: %w", err)
	}

	return nil
}
