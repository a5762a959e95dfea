package nostr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSignerSignsViaBridge(t *testing.T) {
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var ev UnsignedEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))

		signed := SignedEvent{UnsignedEvent: ev, ID: "id-1", Sig: "sig-1"}
		_ = json.NewEncoder(w).Encode(signed)
	}))
	defer bridge.Close()

	s := NewHTTPSigner(bridge.URL)
	assert.Equal(t, "nip46-bridge", s.Name())

	unsigned := UnsignedEvent{Kind: 0, Tags: [][]string{}, Content: "{}", CreatedAt: 1700000000, Pubkey: "pk1"}
	signed, err := s.SignEvent(context.Background(), unsigned)
	require.NoError(t, err)
	assert.Equal(t, "sig-1", signed.Sig)
	assert.Equal(t, unsigned.Pubkey, signed.Pubkey)
}

func TestHTTPSignerSurfacesBridgeRejection(t *testing.T) {
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "user declined", http.StatusForbidden)
	}))
	defer bridge.Close()

	s := NewHTTPSigner(bridge.URL)
	_, err := s.SignEvent(context.Background(), UnsignedEvent{Pubkey: "pk1"})
	require.Error(t, err)
	// The bridge's reason must survive into the error the human sees.
	assert.Contains(t, err.Error(), "user declined")
	assert.Contains(t, err.Error(), "403")
}

func TestHTTPSignerHonorsContext(t *testing.T) {
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done() // hang until the client gives up
	}))
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewHTTPSigner(bridge.URL)
	_, err := s.SignEvent(ctx, UnsignedEvent{Pubkey: "pk1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
