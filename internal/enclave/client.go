// Package enclave talks to the external key-aggregation enclave that
// holds participant MuSig2 signing material. The coordinator never sees
// participant secrets; it only ever exchanges session identifiers,
// public nonces, and partial signatures with this service (§4.4).
package enclave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
)

// Client is the narrow slice of enclave behavior the Signing Coordinator
// needs: open a session for a participant's ephemeral key, and later ask
// that session to produce a partial signature once the aggregated nonce
// for the transaction is known. The enclave itself is responsible for
// deriving/storing the participant's long-term share; the coordinator
// only ever holds its session handle.
type Client interface {
	// OpenSession registers a signing session for participantPub against
	// sessionID (typically "<competitionID>:<txKind>:<playerIndex>").
	// It returns the participant's round-1 public nonce.
	OpenSession(ctx context.Context, sessionID string, participantPub *btcec.PublicKey) (*musig2.Nonces, error)

	// Sign asks the enclave to produce participantPub's round-2 partial
	// signature for sessionID, given the aggregated nonce and key and the
	// transaction sighash. The enclave is expected to have cached the
	// session opened by OpenSession.
	Sign(ctx context.Context, sessionID string, aggregateNonce [66]byte, aggregateKey *btcec.PublicKey, sigHash [32]byte) (*musig2.PartialSignature, error)
}

// HTTPClient is a REST-backed enclave.Client. The wire format mirrors the
// session/nonce/partial-signature shapes above; the enclave service's
// actual implementation is out of scope for this module (§1 — it is a
// collaborator, not a component the coordinator owns).
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPClient constructs an enclave client against baseURL, defaulting
// to a 30s timeout if no http.Client is supplied.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type openSessionRequest struct {
	SessionID string `json:"session_id"`
	PublicKey string `json:"public_key"`
}

type openSessionResponse struct {
	PublicNonce string `json:"public_nonce"`
}

func (c *HTTPClient) OpenSession(ctx context.Context, sessionID string, participantPub *btcec.PublicKey) (*musig2.Nonces, error) {
	reqBody, err := json.Marshal(openSessionRequest{
		SessionID: sessionID,
		PublicKey: fmt.Sprintf("%x", participantPub.SerializeCompressed()),
	})
	if err != nil {
		return nil, err
	}

	var resp openSessionResponse
	if err := c.postJSON(ctx, "/v1/sessions", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("opening enclave session %s: %w", sessionID, err)
	}

	var nonces musig2.Nonces
	if _, err := fmt.Sscanf(resp.PublicNonce, "%x", &nonces.PubNonce); err != nil {
		return nil, fmt.Errorf("decoding enclave public nonce: %w", err)
	}
	return &nonces, nil
}

type signRequest struct {
	SessionID      string `json:"session_id"`
	AggregateNonce string `json:"aggregate_nonce"`
	AggregateKey   string `json:"aggregate_key"`
	SigHash        string `json:"sig_hash"`
}

type signResponse struct {
	PartialSignature string `json:"partial_signature"`
}

func (c *HTTPClient) Sign(ctx context.Context, sessionID string, aggregateNonce [66]byte, aggregateKey *btcec.PublicKey, sigHash [32]byte) (*musig2.PartialSignature, error) {
	reqBody, err := json.Marshal(signRequest{
		SessionID:      sessionID,
		AggregateNonce: fmt.Sprintf("%x", aggregateNonce),
		AggregateKey:   fmt.Sprintf("%x", aggregateKey.SerializeCompressed()),
		SigHash:        fmt.Sprintf("%x", sigHash),
	})
	if err != nil {
		return nil, err
	}

	var resp signResponse
	if err := c.postJSON(ctx, "/v1/sign", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("requesting partial signature for session %s: %w", sessionID, err)
	}

	sigBytes := make([]byte, 32)
	if _, err := fmt.Sscanf(resp.PartialSignature, "%x", &sigBytes); err != nil {
		return nil, fmt.Errorf("decoding enclave partial signature: %w", err)
	}

	var s btcec.ModNScalar
	s.SetByteSlice(sigBytes)
	return &musig2.PartialSignature{S: &s}, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("enclave returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
