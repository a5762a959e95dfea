// Package preference validates and shapes updates to an account's
// source-selection preference.
//
// Validation lives here in the core; the durable write is performed by the
// storage layer from the Update this package produces. Only fields that are
// both present and pass the allow-list / non-emptiness checks make it into
// the Update — nothing is ever defaulted on the user's behalf.
package preference

import (
	"fmt"
	"strings"

	"github.com/sakif/identity-hub/internal/apperror"
	"github.com/sakif/identity-hub/internal/model"
)

// Input is the raw request body for a preference update.
type Input struct {
	ProfileSource   string `json:"profileSource"`
	PrimaryProvider string `json:"primaryProvider"`
}

// Validated is an Input that passed Validate. Zero fields mean "not
// provided".
type Validated struct {
	Source          model.ProfileSource
	PrimaryProvider string
}

// Update carries only the fields the storage layer should touch. A nil
// pointer means "leave this column alone".
type Update struct {
	Source            *model.ProfileSource
	PrimaryProviderID *string
}

// Empty reports whether the update would touch nothing; callers skip the
// storage write entirely in that case.
func (u Update) Empty() bool {
	return u.Source == nil && u.PrimaryProviderID == nil
}

// Validate checks the raw input.
//
//   - profileSource, if provided, must be one of the two known values.
//     Anything else fails validation — it is never silently dropped or
//     defaulted, and BuildUpdate is never reached.
//   - primaryProvider, if provided, must be non-empty after trimming.
//     An empty or whitespace-only value is treated as "not provided",
//     never as "clear the primary provider" — clearing is not supported
//     by this update path.
func Validate(in Input) (Validated, error) {
	var v Validated

	if raw := strings.TrimSpace(in.ProfileSource); raw != "" {
		source := model.ProfileSource(raw)
		if !source.Valid() {
			return Validated{}, apperror.ValidationFailed("profileSource",
				fmt.Sprintf("profile source must be %q or %q, got %q",
					model.SourceNostr, model.SourceOAuth, raw))
		}
		v.Source = source
	}

	if provider := strings.TrimSpace(in.PrimaryProvider); provider != "" {
		v.PrimaryProvider = provider
	}

	return v, nil
}

// BuildUpdate converts a validated input into the storage-facing update.
// Only call with the result of a successful Validate.
func BuildUpdate(v Validated) Update {
	var u Update
	if v.Source != "" {
		source := v.Source
		u.Source = &source
	}
	if v.PrimaryProvider != "" {
		provider := v.PrimaryProvider
		u.PrimaryProviderID = &provider
	}
	return u
}
