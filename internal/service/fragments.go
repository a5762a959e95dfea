package service

import (
	"encoding/json"
	"fmt"

	"github.com/sakif/identity-hub/internal/model"
)

// fragmentFor builds the profile fragment one linked identity contributes.
//
// FRAGMENTS ARE BUILT HERE, MERGED ELSEWHERE:
// profile.Aggregate is a pure function; fetching is this layer's job. Each
// source can fail independently — the caller treats a failed source as
// contributing nothing (the fragment map stays sparse) and logs the cause
// rather than failing the whole aggregation.
//
// Sources:
//   - nostr: the cached content of the latest profile-metadata event,
//     stored on the identity row after each signed update
//   - github / email / anonymous: the profile columns cached at link time
func fragmentFor(identity model.Identity) (model.Fragment, error) {
	if identity.Kind == model.ProviderNostr {
		return nostrFragment(identity)
	}
	return columnFragment(identity), nil
}

// nostrFragment parses the cached kind-0 content. Unknown keys in the
// cached event are dropped rather than carried — the merger only deals in
// attributes the platform understands.
func nostrFragment(identity model.Identity) (model.Fragment, error) {
	if identity.Metadata == "" {
		return model.Fragment{}, nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(identity.Metadata), &raw); err != nil {
		return nil, fmt.Errorf("parsing cached profile metadata: %w", err)
	}

	frag := make(model.Fragment)
	for attr, value := range raw {
		s, ok := value.(string)
		if !ok || s == "" || !model.KnownAttributes[attr] {
			continue
		}
		frag[attr] = s
	}
	return frag, nil
}

// columnFragment lifts the cached provider columns into a fragment.
// Empty columns stay absent — a provider that reported nothing defines
// nothing.
func columnFragment(identity model.Identity) model.Fragment {
	frag := make(model.Fragment)
	if identity.DisplayName != "" {
		frag[model.AttrName] = identity.DisplayName
	}
	if identity.AvatarURL != "" {
		frag[model.AttrPicture] = identity.AvatarURL
	}
	return frag
}
