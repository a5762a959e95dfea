package model

import "fmt"

// Profile attribute names, following the field names of the kind-0
// profile-metadata event so that a fragment can be serialized into event
// content without renaming keys.
const (
	AttrName    = "name"
	AttrAbout   = "about"
	AttrPicture = "picture"
	AttrBanner  = "banner"
	AttrNIP05   = "nip05"
	AttrLud16   = "lud16" // lightning address
	AttrWebsite = "website"
)

// KnownAttributes lists every attribute the platform understands. Updates
// naming an attribute outside this set are rejected at validation time.
var KnownAttributes = map[string]bool{
	AttrName:    true,
	AttrAbout:   true,
	AttrPicture: true,
	AttrBanner:  true,
	AttrNIP05:   true,
	AttrLud16:   true,
	AttrWebsite: true,
}

// Fragment is the subset of profile attributes obtainable from one linked
// identity source. An absent key means "this source does not define the
// attribute" — which is semantically distinct from a key mapped to "".
//
// Fragments are ephemeral: rebuilt on every aggregation request, never
// persisted as such.
type Fragment map[string]string

// Clone returns an independent copy. A nil fragment clones to an empty,
// non-nil one so callers can write into the result.
func (f Fragment) Clone() Fragment {
	out := make(Fragment, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// AggregatedProfile is the union of the per-source fragments under the
// merge policy. Derived on demand, never independently mutated.
type AggregatedProfile struct {
	AccountID  string   `json:"accountId"`
	Attributes Fragment `json:"attributes"`
}

// PlaceholderAvatarURL returns the deterministic placeholder avatar for an
// account, used when no linked source provides a picture. Deriving it from
// the account ID keeps it stable across requests without storing anything.
func PlaceholderAvatarURL(accountID string) string {
	return fmt.Sprintf("https://robohash.org/%s.png?set=set4", accountID)
}
