package nostr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/identity-hub/internal/apperror"
	"github.com/sakif/identity-hub/internal/model"
)

// ErrMissingIdentity means the account has no decentralized identity, so
// it cannot produce a profile-metadata event at all.
var ErrMissingIdentity = errors.New("account has no nostr identity")

// Patch is a tri-state update for one profile attribute.
//
// TRI-STATE SEMANTICS:
// An HTTP request body distinguishes a missing key from an explicit null,
// and so must we — "no change requested" and "clear this field" are
// different instructions. Go's zero values can't carry that distinction
// through json.Unmarshal on their own, so Patch is a small tagged variant:
//
//	absent key          → zero Patch        → leave the attribute untouched
//	explicit null / ""  → Remove()          → delete the attribute
//	non-empty string    → Set("v")          → set it (trimmed)
//
// A set value that is empty after trimming counts as a removal.
type Patch struct {
	present bool
	clear   bool
	value   string
}

// Set returns a patch that sets the attribute to v.
func Set(v string) Patch { return Patch{present: true, value: v} }

// Remove returns a patch that deletes the attribute.
func Remove() Patch { return Patch{present: true, clear: true} }

// Provided reports whether the caller expressed any instruction at all.
func (p Patch) Provided() bool { return p.present }

// UnmarshalJSON implements the absent/null/value distinction for request
// bodies: json only calls this for keys that are present, so an absent key
// leaves the zero ("untouched") patch.
func (p *Patch) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Remove()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("profile attribute must be a string or null: %w", err)
	}
	*p = Set(s)
	return nil
}

// Updates is a partial attribute bag keyed by profile attribute name.
type Updates map[string]Patch

// Coordinator builds unsigned profile-update events and delegates their
// signing to an external capability.
//
// The coordinator is request-scoped and stateless: each call stands alone,
// and the only suspension point in it is the one outstanding SignEvent
// call, bounded by the caller's context.
type Coordinator struct {
	logger *slog.Logger
}

func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{logger: logger}
}

// PrepareUpdate applies a partial update bag on top of the current
// fragment (if any) and produces the unsigned profile-metadata event.
//
// Defaulting: when the resulting bag still lacks a name or picture and the
// caller supplied fallbacks (typically lifted from an OAuth fragment),
// those fill the gap — first population only, never overwriting a value
// that survived the update.
func (c *Coordinator) PrepareUpdate(
	current model.Fragment,
	pubkey string,
	fallbackName string,
	fallbackPicture string,
	updates Updates,
) (UnsignedEvent, error) {
	pubkey = strings.TrimSpace(pubkey)
	if pubkey == "" {
		return UnsignedEvent{}, &apperror.AppError{
			Err:     fmt.Errorf("%w: %w", apperror.ErrValidation, ErrMissingIdentity),
			Message: "a nostr identity is required to publish a profile update",
			Field:   "pubkey",
		}
	}

	for attr := range updates {
		if !model.KnownAttributes[attr] {
			return UnsignedEvent{}, apperror.ValidationFailed(attr,
				fmt.Sprintf("unknown profile attribute %q", attr))
		}
	}

	bag := current.Clone()
	for attr, patch := range updates {
		if !patch.Provided() {
			continue
		}
		trimmed := strings.TrimSpace(patch.value)
		if patch.clear || trimmed == "" {
			// Explicit null or empty-after-trim: remove the attribute.
			delete(bag, attr)
			continue
		}
		bag[attr] = trimmed
	}

	if _, ok := bag[model.AttrName]; !ok && strings.TrimSpace(fallbackName) != "" {
		bag[model.AttrName] = strings.TrimSpace(fallbackName)
	}
	if _, ok := bag[model.AttrPicture]; !ok && strings.TrimSpace(fallbackPicture) != "" {
		bag[model.AttrPicture] = strings.TrimSpace(fallbackPicture)
	}

	content, err := json.Marshal(bag)
	if err != nil {
		return UnsignedEvent{}, fmt.Errorf("nostr: marshaling profile content: %w", err)
	}

	return UnsignedEvent{
		Kind:      KindProfileMetadata,
		Tags:      [][]string{},
		Content:   string(content),
		CreatedAt: time.Now().Unix(),
		Pubkey:    pubkey,
	}, nil
}

// RequestSignature delegates signing of the event to the given capability.
//
// Exactly one attempt is made. A rejection is final for this invocation:
// retrying silently would re-prompt the human behind the agent, which is
// explicitly disallowed. If ctx is canceled the pending request is
// abandoned and no signed event is returned.
func (c *Coordinator) RequestSignature(
	ctx context.Context,
	unsigned UnsignedEvent,
	capability Capability,
) (SignedEvent, error) {
	if capability == nil {
		return SignedEvent{}, apperror.Signer(
			"no signing capability is available in this environment",
			ErrSignerUnavailable,
		)
	}

	signer, ok := capability.(Signer)
	if !ok {
		return SignedEvent{}, apperror.Signer(
			fmt.Sprintf("capability %q does not expose a sign-event operation", capability.Name()),
			ErrSignerCapabilityMissing,
		)
	}

	if err := ctx.Err(); err != nil {
		return SignedEvent{}, apperror.Signer("signing abandoned", fmt.Errorf("%w: %w", ErrSigningRejected, err))
	}

	signed, err := signer.SignEvent(ctx, unsigned)
	if err != nil {
		// Preserve the agent's reason verbatim — the caller is a human who
		// needs to know why their signer said no.
		return SignedEvent{}, apperror.Signer(
			fmt.Sprintf("signer %q rejected the event: %v", signer.Name(), err),
			fmt.Errorf("%w: %w", ErrSigningRejected, err),
		)
	}

	if err := validateSigned(unsigned, signed); err != nil {
		return SignedEvent{}, apperror.Signer(
			fmt.Sprintf("signer %q returned an unusable event: %v", signer.Name(), err),
			fmt.Errorf("%w: %w", ErrSigningRejected, err),
		)
	}

	c.logger.Info("profile update signed",
		slog.String("signer", signer.Name()),
		slog.String("pubkey", signed.Pubkey),
		slog.String("eventId", signed.ID),
	)

	return signed, nil
}

// validateSigned checks that the signer actually signed what it was given:
// signature and ID present, unsigned fields untouched. It does NOT verify
// the signature cryptographically — that is the relay/consumer's job.
func validateSigned(unsigned UnsignedEvent, signed SignedEvent) error {
	if signed.Sig == "" {
		return errors.New("missing signature")
	}
	if signed.ID == "" {
		return errors.New("missing event id")
	}
	if signed.Kind != unsigned.Kind ||
		signed.Content != unsigned.Content ||
		signed.CreatedAt != unsigned.CreatedAt ||
		signed.Pubkey != unsigned.Pubkey {
		return errors.New("signed event does not match the requested event")
	}
	return nil
}
