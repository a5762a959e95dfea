// Package service — business logic between the HTTP handlers and the
// repositories.
//
// AuthService owns login and registration for every identity method.
// Whatever the method, the outcome is the same shape: an account, its
// primary identity, and a session token the handler turns into a cookie.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/identity-hub/internal/apperror"
	"github.com/sakif/identity-hub/internal/auth"
	"github.com/sakif/identity-hub/internal/model"
	"github.com/sakif/identity-hub/internal/repository"
)

// AuthService handles authentication business logic.
type AuthService struct {
	accounts   repository.AccountRepository
	identities repository.IdentityRepository
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	logger     *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	accounts repository.AccountRepository,
	identities repository.IdentityRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		accounts:   accounts,
		identities: identities,
		tokens:     tokens,
		passwords:  passwords,
		logger:     logger,
	}
}

// AuthResult bundles the account and the issued session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	Account  *model.Account
	Identity *model.Identity
	Token    string
}

// LoginOrRegisterGitHub handles the GitHub OAuth LOGIN callback (as
// opposed to the linking callback, which attaches GitHub to an existing
// account — see IdentityService.CompleteLink).
//
// First login creates an account with a GitHub identity; subsequent
// logins refresh the cached profile columns in case the user changed them
// on GitHub.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	identity := &model.Identity{
		Kind:           model.ProviderGitHub,
		ProviderUserID: fmt.Sprintf("%d", ghUser.ID),
		DisplayName:    displayNameFor(ghUser),
		Email:          ghUser.Email,
		AvatarURL:      ghUser.AvatarURL,
	}

	existing, err := s.identities.GetIdentityByProvider(ctx, model.ProviderGitHub, identity.ProviderUserID)
	switch {
	case err == nil:
		identity.AccountID = existing.AccountID
	case isNotFound(err):
		account := &model.Account{}
		if err := s.accounts.CreateAccount(ctx, account); err != nil {
			return nil, fmt.Errorf("service/auth: creating account: %w", err)
		}
		identity.AccountID = account.ID
	default:
		return nil, fmt.Errorf("service/auth: looking up GitHub identity: %w", err)
	}

	if err := s.identities.LinkIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("service/auth: upserting GitHub identity (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("account authenticated via GitHub",
		slog.String("accountID", identity.AccountID),
		slog.String("login", ghUser.Login),
	)

	return s.finishLogin(ctx, identity)
}

// RegisterEmail creates an account with an email identity.
func (s *AuthService) RegisterEmail(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if len(password) < 8 {
		return nil, apperror.ValidationFailed("password", "password must be at least 8 characters")
	}

	if _, err := s.identities.GetIdentityByProvider(ctx, model.ProviderEmail, email); err == nil {
		return nil, apperror.Conflict("email identity", email)
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("service/auth: checking email identity: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	account := &model.Account{}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("service/auth: creating account: %w", err)
	}

	identity := &model.Identity{
		AccountID:      account.ID,
		Kind:           model.ProviderEmail,
		ProviderUserID: email,
		Email:          email,
		DisplayName:    email,
		PasswordHash:   hash,
	}
	if err := s.identities.LinkIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("service/auth: linking email identity: %w", err)
	}

	s.logger.Info("account registered via email", slog.String("accountID", account.ID))

	return s.finishLogin(ctx, identity)
}

// LoginEmail authenticates an existing email identity.
func (s *AuthService) LoginEmail(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	identity, err := s.identities.GetIdentityByProvider(ctx, model.ProviderEmail, email)
	if err != nil {
		if isNotFound(err) {
			// Same response as a wrong password — do not reveal which
			// half was wrong.
			return nil, apperror.Forbidden("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: looking up email identity: %w", err)
	}

	if err := s.passwords.Verify(identity.PasswordHash, password); err != nil {
		return nil, apperror.Forbidden("invalid email or password")
	}

	return s.finishLogin(ctx, identity)
}

// LoginAnonymous creates an ephemeral account with an anonymous identity.
// The generated handle doubles as the provider-side identifier.
func (s *AuthService) LoginAnonymous(ctx context.Context) (*AuthResult, error) {
	account := &model.Account{}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("service/auth: creating anonymous account: %w", err)
	}

	handle := "anon-" + xid.New().String()
	identity := &model.Identity{
		AccountID:      account.ID,
		Kind:           model.ProviderAnonymous,
		ProviderUserID: handle,
		DisplayName:    handle,
	}
	if err := s.identities.LinkIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("service/auth: linking anonymous identity: %w", err)
	}

	s.logger.Info("anonymous account created", slog.String("accountID", account.ID))

	return s.finishLogin(ctx, identity)
}

// LoginNostr signs in (or registers) by nostr public key.
//
// The pubkey assertion arrives from the client-side signing agent; the
// server holds no keys and runs no challenge here. An attacker asserting
// someone else's pubkey gains a session whose profile updates it can
// never get signed, so the signer remains the effective gate.
func (s *AuthService) LoginNostr(ctx context.Context, pubkey string) (*AuthResult, error) {
	pubkey = strings.TrimSpace(pubkey)
	if pubkey == "" {
		return nil, apperror.ValidationFailed("pubkey", "a public key is required")
	}

	existing, err := s.identities.GetIdentityByPubkey(ctx, pubkey)
	switch {
	case err == nil:
		return s.finishLogin(ctx, existing)
	case !isNotFound(err):
		return nil, fmt.Errorf("service/auth: looking up nostr identity: %w", err)
	}

	account := &model.Account{}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("service/auth: creating account: %w", err)
	}

	identity := &model.Identity{
		AccountID: account.ID,
		Kind:      model.ProviderNostr,
		Pubkey:    pubkey,
	}
	if err := s.identities.LinkIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("service/auth: linking nostr identity: %w", err)
	}

	s.logger.Info("nostr account created", slog.String("accountID", account.ID))

	return s.finishLogin(ctx, identity)
}

// GetAccountByID returns the account for the given internal ID. Used by
// the /api/me handler after the middleware validates the session.
func (s *AuthService) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: account ID must not be empty")
	}
	account, err := s.accounts.GetAccountByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching account %s: %w", id, err)
	}
	return account, nil
}

// ValidateToken validates a session JWT and returns the account ID.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	accountID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return accountID, nil
}

// finishLogin loads the account and issues a session token.
func (s *AuthService) finishLogin(ctx context.Context, identity *model.Identity) (*AuthResult, error) {
	account, err := s.accounts.GetAccountByID(ctx, identity.AccountID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: loading account %s: %w", identity.AccountID, err)
	}

	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for account %s: %w", account.ID, err)
	}

	return &AuthResult{Account: account, Identity: identity, Token: token}, nil
}

func displayNameFor(ghUser *auth.GitHubUser) string {
	if ghUser.Name != "" {
		return ghUser.Name
	}
	return ghUser.Login
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
