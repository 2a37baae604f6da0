package api

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// nip98Kind is the Nostr event kind reserved for HTTP auth events
// (NIP-98). The coordinator doesn't speak the rest of the Nostr protocol;
// it only verifies this one event shape as a signed-request header, per
// §6 "NIP-98-style signed-request header".
const nip98Kind = 27235

// maxClockSkew bounds how far a request's created_at may drift from the
// server's clock before it's rejected as stale or pre-dated.
const maxClockSkew = 60 * time.Second

// nostrEvent is the subset of a Nostr event NIP-98 actually needs.
type nostrEvent struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// AuthenticatedPubkey extracts and verifies the NIP-98 signed-request
// header on r, returning the hex-encoded pubkey that signed it. It
// verifies: the event decodes, its kind is 27235, its "u"/"method" tags
// match the actual request, its timestamp is within maxClockSkew of now,
// its id is the correct hash of its serialized form, and its schnorr
// signature verifies against that id and pubkey.
func AuthenticatedPubkey(r *http.Request, now time.Time) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Nostr "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("missing Nostr authorization header")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return "", fmt.Errorf("decoding auth header: %w", err)
	}

	var ev nostrEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", fmt.Errorf("decoding auth event: %w", err)
	}

	if ev.Kind != nip98Kind {
		return "", fmt.Errorf("unexpected event kind %d", ev.Kind)
	}

	createdAt := time.Unix(ev.CreatedAt, 0)
	if createdAt.Before(now.Add(-maxClockSkew)) || createdAt.After(now.Add(maxClockSkew)) {
		return "", fmt.Errorf("auth event timestamp outside allowed skew")
	}

	requestURL := requestURL(r)
	if !hasTag(ev.Tags, "u", requestURL) {
		return "", fmt.Errorf("auth event url tag does not match request")
	}
	if !hasTag(ev.Tags, "method", r.Method) {
		return "", fmt.Errorf("auth event method tag does not match request")
	}

	if err := verifyEventID(ev); err != nil {
		return "", err
	}
	if err := verifyEventSignature(ev); err != nil {
		return "", err
	}

	return ev.PubKey, nil
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.Path)
}

func hasTag(tags [][]string, name, value string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name && tag[1] == value {
			return true
		}
	}
	return false
}

// verifyEventID recomputes the Nostr event id: sha256 of the canonical
// JSON array [0, pubkey, created_at, kind, tags, content].
func verifyEventID(ev nostrEvent) error {
	serialized, err := json.Marshal([]interface{}{
		0, ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content,
	})
	if err != nil {
		return err
	}
	sum := sha256.Sum256(serialized)
	want := hex.EncodeToString(sum[:])
	if want != ev.ID {
		return fmt.Errorf("auth event id mismatch")
	}
	return nil
}

func verifyEventSignature(ev nostrEvent) error {
	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil {
		return fmt.Errorf("decoding event id: %w", err)
	}
	pubKeyBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil {
		return fmt.Errorf("decoding event pubkey: %w", err)
	}
	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil {
		return fmt.Errorf("decoding event signature: %w", err)
	}

	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return fmt.Errorf("parsing event pubkey: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parsing event signature: %w", err)
	}
	if !sig.Verify(idBytes, pubKey) {
		return fmt.Errorf("auth event signature verification failed")
	}
	return nil
}
