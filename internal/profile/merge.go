// Package profile merges per-source profile fragments into one aggregated
// profile under the account's source preference.
//
// Aggregate is deliberately a pure function over explicit inputs: it does
// no I/O, reads no global state, and never mutates its arguments. Fetching
// fragments from each provider is the caller's job — by the time this
// package runs, every fragment is an immutable snapshot.
package profile

import (
	"sort"

	"github.com/sakif/identity-hub/internal/model"
)

// Preference is the slice of account state the merge policy consults.
// Passed explicitly (not read from a session) so the policy stays testable
// in isolation.
type Preference struct {
	Source            model.ProfileSource // "" = unset
	PrimaryProviderID string              // identity ID, "" = unset
}

// Aggregate combines the fragments of the given linked identities into one
// profile.
//
// MERGE POLICY (in precedence order, first definition of an attribute wins):
//
//  1. If the preference names a source kind and at least one linked
//     identity has that kind, those fragments win for every attribute they
//     define.
//  2. Attributes still undefined fall back to the fragment of the primary
//     provider identity, if set and actually owned.
//  3. Anything left falls back across remaining identities in the fixed
//     order nostr, github, email, anonymous.
//  4. An attribute defined by no fragment is omitted — never defaulted to
//     "". Omission and blank are different answers.
//
// The fragments map is keyed by identity ID and may be sparse: a linked
// identity whose fragment could not be fetched simply contributes nothing.
//
// Aggregate never fails. An account with no linked identities yields only
// the platform defaults (a deterministic placeholder avatar).
func Aggregate(
	accountID string,
	identities []model.Identity,
	fragments map[string]model.Fragment,
	pref Preference,
) model.AggregatedProfile {
	merged := make(model.Fragment)

	for _, id := range orderIdentities(identities, pref) {
		frag, ok := fragments[id.ID]
		if !ok {
			continue // source fetch failed or returned nothing
		}
		for attr, value := range frag {
			if _, defined := merged[attr]; !defined {
				merged[attr] = value
			}
		}
	}

	// Platform default: an account with no linked identities still gets a
	// deterministic placeholder avatar. When identities exist, attributes
	// they don't define stay omitted (rule 4) — the view layer decides how
	// to render gaps.
	if len(identities) == 0 {
		merged[model.AttrPicture] = model.PlaceholderAvatarURL(accountID)
	}

	return model.AggregatedProfile{
		AccountID:  accountID,
		Attributes: merged,
	}
}

// orderIdentities returns the identities in merge precedence order:
// preferred-kind identities first, then the primary identity, then the
// rest grouped by the fixed fallback order. Within a group, identities
// sort by link time then ID so the result is stable across calls.
func orderIdentities(identities []model.Identity, pref Preference) []model.Identity {
	byKind := make(map[model.ProviderKind][]model.Identity, len(identities))
	for _, id := range identities {
		byKind[id.Kind] = append(byKind[id.Kind], id)
	}
	for kind := range byKind {
		group := byKind[kind]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].LinkedAt.Equal(group[j].LinkedAt) {
				return group[i].LinkedAt.Before(group[j].LinkedAt)
			}
			return group[i].ID < group[j].ID
		})
	}

	seen := make(map[string]bool, len(identities))
	ordered := make([]model.Identity, 0, len(identities))
	appendOnce := func(ids ...model.Identity) {
		for _, id := range ids {
			if !seen[id.ID] {
				seen[id.ID] = true
				ordered = append(ordered, id)
			}
		}
	}

	// Rule 1: the preferred source kind, when actually linked.
	if preferredKind := pref.Source.Kind(); preferredKind != "" {
		appendOnce(byKind[preferredKind]...)
	}

	// Rule 2: the primary provider identity, when set and owned.
	if pref.PrimaryProviderID != "" {
		for _, id := range identities {
			if id.ID == pref.PrimaryProviderID {
				appendOnce(id)
				break
			}
		}
	}

	// Rule 3: everything else in fixed fallback order.
	for _, kind := range model.FallbackOrder {
		appendOnce(byKind[kind]...)
	}

	return ordered
}
