package nostr

import (
	"context"
	"errors"
)

// Capability is whatever signing agent the execution environment provides,
// discovered at runtime rather than wired at compile time — the server-side
// analogue of checking for window.nostr in a browser.
//
// A capability that can actually sign also implements Signer. Modeling the
// two as separate interfaces lets the coordinator distinguish "no agent at
// all" from "an agent that exists but cannot sign", which are different
// failure modes a human needs to react to differently.
type Capability interface {
	// Name identifies the agent for logs and error messages,
	// e.g. "nip46-bridge".
	Name() string
}

// Signer is a capability that exposes the sign-event operation.
//
// SignEvent may be interactive: the agent can prompt a human before
// approving, so a call can legitimately take as long as the surrounding
// request allows. Implementations must honor ctx cancellation and must
// never be retried by callers — a silent retry would re-prompt the user
// unexpectedly.
type Signer interface {
	Capability
	SignEvent(ctx context.Context, event UnsignedEvent) (SignedEvent, error)
}

var (
	// ErrSignerUnavailable: no signing capability is present in the
	// environment at all.
	ErrSignerUnavailable = errors.New("no signer capability available")

	// ErrSignerCapabilityMissing: a capability exists but does not expose
	// the sign-event operation.
	ErrSignerCapabilityMissing = errors.New("signer capability does not support signing")

	// ErrSigningRejected: the agent refused to sign or the signing call
	// failed. The underlying cause is preserved in the error chain.
	ErrSigningRejected = errors.New("signing rejected")
)

// SignerFunc adapts a function to the Signer interface. Used by tests and
// by small in-process signers.
type SignerFunc func(ctx context.Context, event UnsignedEvent) (SignedEvent, error)

func (f SignerFunc) Name() string { return "func" }

func (f SignerFunc) SignEvent(ctx context.Context, event UnsignedEvent) (SignedEvent, error) {
	return f(ctx, event)
}
