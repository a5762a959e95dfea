package nostr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSigner is the production signing capability: a locally reachable
// NIP-46-style bridge that holds the user's key and exposes a single
// sign-event endpoint. Whether it exists is discovered from configuration
// at startup — when it isn't configured, the server simply has no signer
// capability and RequestSignature reports that.
//
// The bridge may prompt a human before approving, so no client-side
// timeout is imposed here beyond the request context: the surrounding
// request's own deadline bounds the wait.
type HTTPSigner struct {
	url    string
	client *http.Client
}

// NewHTTPSigner creates a signer that POSTs unsigned events to url.
func NewHTTPSigner(url string) *HTTPSigner {
	return &HTTPSigner{
		url: url,
		client: &http.Client{
			// No Timeout: interactive approval can take minutes. The
			// per-request context carries the real bound.
			Transport: &http.Transport{
				ResponseHeaderTimeout: 0,
				IdleConnTimeout:       60 * time.Second,
			},
		},
	}
}

func (s *HTTPSigner) Name() string { return "nip46-bridge" }

// SignEvent sends the unsigned event to the bridge and decodes the signed
// event it returns. Any non-200 response is a rejection; the response body
// is included so the human-facing error explains what the agent said.
func (s *HTTPSigner) SignEvent(ctx context.Context, event UnsignedEvent) (SignedEvent, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return SignedEvent{}, fmt.Errorf("encoding unsigned event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SignedEvent{}, fmt.Errorf("building sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SignedEvent{}, fmt.Errorf("calling signer bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return SignedEvent{}, fmt.Errorf("signer bridge returned %d: %s", resp.StatusCode, bytes.TrimSpace(reason))
	}

	var signed SignedEvent
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return SignedEvent{}, fmt.Errorf("decoding signed event: %w", err)
	}

	return signed, nil
}
