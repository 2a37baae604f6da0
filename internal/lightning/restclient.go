package lightning

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// base64Std and decodeBase64 convert the raw hash/preimage bytes lnd's
// REST gateway expects/returns as base64, per protobuf's JSON mapping for
// `bytes` fields.
func base64Std(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// RESTClient is the Client implementation backing a real coordinator
// process: lnd's own REST surface (the same endpoints daemon/lnd.go
// exposed through grpc-gateway), called directly over net/http instead of
// through a generated gateway, since the teacher's grpc/grpc-gateway
// stack was dropped in favor of a plain JSON/HTTPS API (§6) with nothing
// left in this module that would otherwise need a gRPC client.
type RESTClient struct {
	baseURL    string
	macaroon   string
	httpClient *http.Client
}

// DialConfig names the node address plus the credentials lnd's REST API
// requires: a TLS certificate to verify the node (lnd's self-signed cert
// by default) and a macaroon proving authorization for the calls below.
type DialConfig struct {
	RPCHost      string
	MacaroonPath string
	TLSCertPath  string
}

// Dial loads the macaroon and TLS certificate named by cfg and returns a
// client ready to call lnd's invoice and payment endpoints.
func Dial(cfg DialConfig) (*RESTClient, error) {
	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("reading lightning macaroon: %w", err)
	}

	tlsConfig := &tls.Config{}
	if cfg.TLSCertPath != "" {
		certBytes, err := os.ReadFile(cfg.TLSCertPath)
		if err != nil {
			return nil, fmt.Errorf("reading lightning tls cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(certBytes) {
			return nil, fmt.Errorf("parsing lightning tls cert")
		}
		tlsConfig.RootCAs = pool
	}

	return &RESTClient{
		baseURL:  "https://" + cfg.RPCHost,
		macaroon: hex.EncodeToString(macBytes),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
	}, nil
}

type addHodlInvoiceRequest struct {
	Hash    string `json:"hash"`
	Value   int64  `json:"value"`
	Memo    string `json:"memo"`
	Expiry  int64  `json:"expiry"`
}

type addHodlInvoiceResponse struct {
	PaymentRequest string `json:"payment_request"`
}

func (c *RESTClient) AddHodlInvoice(ctx context.Context, hash Hash, amtSat int64, memo string, expirySeconds int64) (string, error) {
	reqBody, err := json.Marshal(addHodlInvoiceRequest{
		Hash:   base64Std(hash[:]),
		Value:  amtSat,
		Memo:   memo,
		Expiry: expirySeconds,
	})
	if err != nil {
		return "", err
	}

	var resp addHodlInvoiceResponse
	if err := c.call(ctx, http.MethodPost, "/v2/invoices/hodl", reqBody, &resp); err != nil {
		return "", fmt.Errorf("adding hodl invoice: %w", err)
	}
	return resp.PaymentRequest, nil
}

type lookupInvoiceResponse struct {
	State string `json:"state"`
	Value string `json:"value"`
	PaymentRequest string `json:"payment_request"`
}

func (c *RESTClient) LookupInvoice(ctx context.Context, hash Hash) (*Invoice, error) {
	path := fmt.Sprintf("/v2/invoices/lookup?payment_hash=%s", hex.EncodeToString(hash[:]))

	var resp lookupInvoiceResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("looking up invoice %s: %w", hash, err)
	}

	var valueSat int64
	fmt.Sscanf(resp.Value, "%d", &valueSat)

	return &Invoice{
		Hash:           hash,
		PaymentRequest: resp.PaymentRequest,
		State:          invoiceStateFromLND(resp.State),
		ValueSat:       valueSat,
	}, nil
}

func invoiceStateFromLND(s string) InvoiceState {
	switch s {
	case "OPEN":
		return InvoiceOpen
	case "ACCEPTED":
		return InvoiceAccepted
	case "SETTLED":
		return InvoiceSettled
	case "CANCELED":
		return InvoiceCancelled
	default:
		return InvoiceOpen
	}
}

func (c *RESTClient) SettleInvoice(ctx context.Context, preimage Preimage) error {
	reqBody, err := json.Marshal(map[string]string{"preimage": base64Std(preimage[:])})
	if err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodPost, "/v2/invoices/settle", reqBody, nil); err != nil {
		return fmt.Errorf("settling invoice %s: %w", preimage.Hash(), err)
	}
	return nil
}

func (c *RESTClient) CancelInvoice(ctx context.Context, hash Hash) error {
	reqBody, err := json.Marshal(map[string]string{"payment_hash": base64Std(hash[:])})
	if err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodPost, "/v2/invoices/cancel", reqBody, nil); err != nil {
		return fmt.Errorf("cancelling invoice %s: %w", hash, err)
	}
	return nil
}

type payInvoiceRequest struct {
	PaymentRequest string `json:"payment_request"`
	AmtSat         int64  `json:"amt,omitempty"`
}

type payInvoiceResponse struct {
	PaymentPreimage string `json:"payment_preimage"`
	PaymentError    string `json:"payment_error"`
}

// PayInvoice pays a BOLT-11 invoice a winning participant registered for
// the cooperative Lightning payout path (§4.6). lnd's own REST payment
// endpoint streams intermediate HTLC attempt updates; the coordinator
// only needs the final outcome, so this reads one response object rather
// than following the stream.
func (c *RESTClient) PayInvoice(ctx context.Context, paymentRequest string, amtSat int64) (Preimage, error) {
	var preimage Preimage

	reqBody, err := json.Marshal(payInvoiceRequest{PaymentRequest: paymentRequest, AmtSat: amtSat})
	if err != nil {
		return preimage, err
	}

	var resp payInvoiceResponse
	if err := c.call(ctx, http.MethodPost, "/v1/channels/transactions", reqBody, &resp); err != nil {
		return preimage, fmt.Errorf("paying invoice: %w", err)
	}
	if resp.PaymentError != "" {
		return preimage, fmt.Errorf("payment failed: %s", resp.PaymentError)
	}

	raw, err := decodeBase64(resp.PaymentPreimage)
	if err != nil {
		return preimage, fmt.Errorf("decoding payment preimage: %w", err)
	}
	if len(raw) != len(preimage) {
		return preimage, fmt.Errorf("unexpected preimage length %d", len(raw))
	}
	copy(preimage[:], raw)
	return preimage, nil
}

func (c *RESTClient) call(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Grpc-Metadata-macaroon", c.macaroon)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lnd returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Client = (*RESTClient)(nil)
