// Package model defines the data structures used throughout the application.
package model

import "time"

// ProviderKind identifies one kind of login method an account can hold.
//
// WHY A STRING TYPE (not iota)?
// These values are persisted in the identities table and appear in URLs and
// JSON payloads, so they need stable string representations. A named string
// type gives us type safety in function signatures while keeping the stored
// value human-readable.
type ProviderKind string

const (
	// ProviderNostr is a decentralized identity proven by control of a
	// keypair. It has no provider-side user ID — the public key is the
	// identifier.
	ProviderNostr ProviderKind = "nostr"

	// ProviderGitHub is an OAuth identity issued by GitHub.
	ProviderGitHub ProviderKind = "github"

	// ProviderEmail is a classic email + password identity.
	ProviderEmail ProviderKind = "email"

	// ProviderAnonymous is an ephemeral identity created without any
	// credential, used for try-before-signup sessions.
	ProviderAnonymous ProviderKind = "anonymous"
)

// FallbackOrder is the fixed, stable order profile attributes fall back
// across linked identities when neither the preferred source nor the
// primary provider defines them. Earlier kinds win ties.
var FallbackOrder = []ProviderKind{
	ProviderNostr,
	ProviderGitHub,
	ProviderEmail,
	ProviderAnonymous,
}

// Valid reports whether k is one of the known provider kinds.
func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderNostr, ProviderGitHub, ProviderEmail, ProviderAnonymous:
		return true
	}
	return false
}

// ProfileSource is the user-declared preference for which identity source
// drives their aggregated profile. Only two values are accepted; anything
// else fails preference validation.
type ProfileSource string

const (
	SourceNostr ProfileSource = "nostr"
	SourceOAuth ProfileSource = "oauth"
)

// Valid reports whether s is one of the two known source values.
func (s ProfileSource) Valid() bool {
	return s == SourceNostr || s == SourceOAuth
}

// Kind maps a profile source preference to the provider kind whose
// fragments take precedence during aggregation.
func (s ProfileSource) Kind() ProviderKind {
	switch s {
	case SourceNostr:
		return ProviderNostr
	case SourceOAuth:
		return ProviderGitHub
	default:
		return ""
	}
}

// Account is the platform-level user. An account owns zero or more
// identities; exactly one identity is "primary" at login time.
//
// INVARIANT:
// If PrimaryProviderID is set it must reference an identity owned by this
// account. The sqlite repository enforces this on every preference write.
type Account struct {
	ID                string        `json:"id"                db:"id"`
	PreferredSource   ProfileSource `json:"preferredSource"   db:"preferred_source"`    // empty = unset
	PrimaryProviderID string        `json:"primaryProviderId" db:"primary_provider_id"` // identity ID, empty = unset
	CreatedAt         time.Time     `json:"createdAt"         db:"created_at"`
	UpdatedAt         time.Time     `json:"updatedAt"         db:"updated_at"`
}

// Identity is one linked login method owned by an account.
//
// ProviderUserID is the external identifier assigned by the provider
// (GitHub's numeric ID as a string, the email address, a generated handle
// for anonymous accounts). For nostr identities it is empty — the public
// key is the identifier and lives in Pubkey instead.
//
// The DisplayName/Email/AvatarURL columns cache the profile attributes the
// provider reported at link time; they are the raw material the per-source
// fragment builders read. For nostr identities, Metadata caches the content
// of the latest published profile-metadata event as serialized JSON.
type Identity struct {
	ID             string       `json:"id"             db:"id"`
	AccountID      string       `json:"accountId"      db:"account_id"`
	Kind           ProviderKind `json:"kind"           db:"kind"`
	ProviderUserID string       `json:"providerUserId" db:"provider_user_id"`
	Pubkey         string       `json:"pubkey"         db:"pubkey"`
	DisplayName    string       `json:"displayName"    db:"display_name"`
	Email          string       `json:"email"          db:"email"`
	AvatarURL      string       `json:"avatarUrl"      db:"avatar_url"`
	Metadata       string       `json:"-"              db:"metadata"` // nostr only: cached kind-0 content JSON
	PasswordHash   string       `json:"-"              db:"password_hash"`
	LinkedAt       time.Time    `json:"linkedAt"       db:"linked_at"`
}
