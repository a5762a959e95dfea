// Package linking builds provider authorization URLs for attaching a
// secondary OAuth identity to an already-authenticated account.
//
// PRECONDITION:
// Callers must already hold an authenticated session. The builder takes the
// account ID on faith — rejecting unauthenticated requests is the HTTP
// layer's job (RequireAuth middleware), and it must happen before the
// request reaches this package.
//
// The builder performs no I/O and sends no redirect itself; it only
// computes the URL. The actual 302 belongs to the handler.
package linking

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/sakif/identity-hub/internal/apperror"
	"github.com/sakif/identity-hub/internal/linkstate"
	"github.com/sakif/identity-hub/internal/model"
)

// ErrUnsupportedProvider means the requested provider kind is not on the
// linking allow-list. The list currently has one member ("github"); it is
// checked explicitly rather than assumed so a second provider can be added
// without changing the contract.
var ErrUnsupportedProvider = errors.New("unsupported link provider")

// ProviderConfig is the OAuth client configuration for one provider,
// sourced from process configuration at startup.
//
// Both fields are required. Their absence is a deployment fault, not a
// request fault: the builder fails with a configuration error (5xx) that
// is surfaced distinctly from validation errors.
type ProviderConfig struct {
	ClientID    string
	CallbackURL string // the platform's generic OAuth callback
}

// Builder constructs authorization URLs carrying a link state token.
type Builder struct {
	github ProviderConfig
}

// NewBuilder creates a Builder. Configuration is validated lazily at build
// time, not here — the server should start (and serve everything else)
// even when a provider is unconfigured.
func NewBuilder(github ProviderConfig) *Builder {
	return &Builder{github: github}
}

// AuthorizationURL builds the provider authorization URL for linking the
// given provider kind to the given account.
//
// The query string carries the provider client id, the platform-owned
// callback redirect target, a minimal scope, and the encoded state token
// from the linkstate package.
func (b *Builder) AuthorizationURL(accountID string, provider model.ProviderKind) (string, error) {
	if accountID == "" {
		return "", apperror.ValidationFailed("accountId", "link request requires an account id")
	}

	if provider != model.ProviderGitHub {
		return "", &apperror.AppError{
			Err:     fmt.Errorf("%w: %w", apperror.ErrValidation, ErrUnsupportedProvider),
			Message: fmt.Sprintf("provider %q is not supported for linking", provider),
			Field:   "provider",
		}
	}

	if b.github.ClientID == "" {
		return "", apperror.ConfigurationMissing("github client id")
	}
	if b.github.CallbackURL == "" {
		return "", apperror.ConfigurationMissing("github callback url")
	}

	state, err := linkstate.Encode(linkstate.Token{
		AccountID: accountID,
		Action:    linkstate.ActionLink,
		Provider:  string(provider),
	})
	if err != nil {
		return "", fmt.Errorf("linking: encoding state: %w", err)
	}

	// Minimal scope: linking only needs the public profile to learn the
	// provider-side user ID, name, and avatar. No email scope, no write
	// access.
	cfg := &oauth2.Config{
		ClientID:    b.github.ClientID,
		RedirectURL: b.github.CallbackURL,
		Scopes:      []string{"read:user"},
		Endpoint:    github.Endpoint,
	}

	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}
