// Package linkstate encodes and decodes the anti-forgery state carried
// through an OAuth linking redirect.
//
// WHAT THE TOKEN IS (AND ISN'T):
// The token is a reversible, non-cryptographic transform — base64 of a
// canonical JSON object. It is NOT integrity-protected by itself; its only
// job is to survive the round-trip to the provider and back. Authenticity
// comes from two things working together:
//
//  1. The value is opaque and unguessable to a third party observing only
//     the redirect target.
//  2. The callback handler independently re-authenticates the session and
//     compares the decoded account ID to the session's account ID before
//     trusting anything in it. That comparison is mandatory, not optional
//     hardening.
//
// The token is created per link attempt and consumed exactly once by the
// callback; it is never persisted server-side.
package linkstate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sakif/identity-hub/internal/apperror"
)

// ActionLink is the only action currently carried by a state token.
const ActionLink = "link"

var (
	// ErrMalformed means the opaque string was not valid base64 or did not
	// contain valid JSON.
	ErrMalformed = errors.New("malformed state token")

	// ErrMissingField means the JSON decoded but a required field was
	// absent. Extra unknown fields are fine (forward compatible); missing
	// required ones are not.
	ErrMissingField = errors.New("state token missing required field")
)

// Token is the decoded linking state.
type Token struct {
	AccountID string `json:"accountId"`
	Action    string `json:"action"`
	Provider  string `json:"provider"` // target provider kind, e.g. "github"
}

// Encode serializes the token into an opaque URL-safe string.
//
// Pure transform, no side effects. Fails only on empty required fields —
// encoding an incomplete token would produce a value Decode is guaranteed
// to reject, so we surface the programming error here instead.
func Encode(t Token) (string, error) {
	if t.AccountID == "" {
		return "", apperror.ValidationFailed("accountId", "state token requires an account id")
	}
	if t.Action == "" {
		return "", apperror.ValidationFailed("action", "state token requires an action")
	}
	if t.Provider == "" {
		return "", apperror.ValidationFailed("provider", "state token requires a target provider")
	}

	payload, err := json.Marshal(t)
	if err != nil {
		// Marshaling a struct of strings cannot fail in practice.
		return "", fmt.Errorf("linkstate: marshaling token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// Decode reverses Encode.
//
// Failure modes, both carrying apperror.ErrDecode for the HTTP layer plus
// a package-level sentinel for callers that care which stage failed:
//   - ErrMalformed: bad base64 or bad JSON
//   - ErrMissingField: a required field is absent after decoding
//
// Unknown extra fields in the payload are ignored, so tokens minted by a
// newer build decode fine on an older one.
func Decode(raw string) (Token, error) {
	payload, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Token{}, apperror.Decode(
			"link state is not valid base64",
			fmt.Errorf("%w: %w", ErrMalformed, err),
		)
	}

	var t Token
	if err := json.Unmarshal(payload, &t); err != nil {
		return Token{}, apperror.Decode(
			"link state is not valid JSON",
			fmt.Errorf("%w: %w", ErrMalformed, err),
		)
	}

	for field, value := range map[string]string{
		"accountId": t.AccountID,
		"action":    t.Action,
		"provider":  t.Provider,
	} {
		if value == "" {
			return Token{}, apperror.Decode(
				fmt.Sprintf("link state is missing %s", field),
				fmt.Errorf("%w: %s", ErrMissingField, field),
			)
		}
	}

	return t, nil
}
