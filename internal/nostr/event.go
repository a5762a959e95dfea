// Package nostr builds and coordinates signing of profile-metadata events
// for decentralized identities.
//
// KEY BOUNDARY — NO KEY CUSTODY:
// This package never sees, stores, or transports a private key. Signing is
// delegated to an external capability (a NIP-07-style agent) that holds the
// key and exposes exactly one operation: sign an event. There is no
// parameter anywhere in this package through which raw key material can
// flow. Verification of produced signatures belongs to the relay/consumer
// side and is equally out of scope.
package nostr

// KindProfileMetadata is the event kind carrying display name, avatar and
// the other profile attributes for a decentralized identity ("kind 0").
const KindProfileMetadata = 0

// UnsignedEvent is a profile-update event before signing.
//
// Content is the serialized JSON object of profile attributes; CreatedAt
// is whole seconds since epoch; Tags is an empty (not nil) ordered
// sequence for this flow so it serializes as [] rather than null.
type UnsignedEvent struct {
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	CreatedAt int64      `json:"created_at"`
	Pubkey    string     `json:"pubkey"`
}

// SignedEvent is an UnsignedEvent plus the externally produced event ID
// and signature. Both are carried opaquely: the coordinator validates that
// the signer returned them and left the unsigned fields alone, but does
// not verify the signature itself.
type SignedEvent struct {
	UnsignedEvent
	ID  string `json:"id"`
	Sig string `json:"sig"`
}
