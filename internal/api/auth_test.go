package api

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"
)

// signEvent fills in id/sig for a test nostr event against priv.
func signEvent(t *testing.T, priv *btcec.PrivateKey, ev *nostrEvent) {
	t.Helper()
	ev.PubKey = hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))

	serialized, err := json.Marshal([]interface{}{
		0, ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content,
	})
	require.NoError(t, err)
	sum := sha256.Sum256(serialized)
	ev.ID = hex.EncodeToString(sum[:])

	sig, err := schnorr.Sign(priv, sum[:])
	require.NoError(t, err)
	ev.Sig = hex.EncodeToString(sig.Serialize())
}

func newAuthRequest(t *testing.T, method, url string, ev *nostrEvent) *http.Request {
	t.Helper()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	req := httptest.NewRequest(method, url, nil)
	req.Header.Set("Authorization", "Nostr "+base64.StdEncoding.EncodeToString(raw))
	return req
}

func TestAuthenticatedPubkey_ValidEvent(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	ev := &nostrEvent{
		CreatedAt: now.Unix(),
		Kind:      nip98Kind,
		Tags: [][]string{
			{"u", "http://example.com/api/v1/entries"},
			{"method", http.MethodPost},
		},
	}
	signEvent(t, priv, ev)

	req := newAuthRequest(t, http.MethodPost, "http://example.com/api/v1/entries", ev)

	pubkey, err := AuthenticatedPubkey(req, now)
	require.NoError(t, err)
	require.Equal(t, ev.PubKey, pubkey)
}

func TestAuthenticatedPubkey_RejectsWrongMethodTag(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	ev := &nostrEvent{
		CreatedAt: now.Unix(),
		Kind:      nip98Kind,
		Tags: [][]string{
			{"u", "http://example.com/api/v1/entries"},
			{"method", http.MethodGet},
		},
	}
	signEvent(t, priv, ev)

	req := newAuthRequest(t, http.MethodPost, "http://example.com/api/v1/entries", ev)

	_, err = AuthenticatedPubkey(req, now)
	require.Error(t, err)
}

func TestAuthenticatedPubkey_RejectsStaleTimestamp(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	ev := &nostrEvent{
		CreatedAt: now.Add(-time.Hour).Unix(),
		Kind:      nip98Kind,
		Tags: [][]string{
			{"u", "http://example.com/api/v1/entries"},
			{"method", http.MethodPost},
		},
	}
	signEvent(t, priv, ev)

	req := newAuthRequest(t, http.MethodPost, "http://example.com/api/v1/entries", ev)

	_, err = AuthenticatedPubkey(req, now)
	require.Error(t, err)
}

func TestAuthenticatedPubkey_RejectsContentTamperedAfterSigning(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	ev := &nostrEvent{
		CreatedAt: now.Unix(),
		Kind:      nip98Kind,
		Tags: [][]string{
			{"u", "http://example.com/api/v1/entries"},
			{"method", http.MethodPost},
		},
	}
	signEvent(t, priv, ev)
	ev.Content = "tampered after signing"

	req := newAuthRequest(t, http.MethodPost, "http://example.com/api/v1/entries", ev)

	_, err = AuthenticatedPubkey(req, now)
	require.Error(t, err)
}
