package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/clickarena/backend/internal/config"
)

// sunPerTRX is the smallest-unit conversion factor (1 TRX = 1,000,000 Sun).
const sunPerTRX = 1_000_000

// Client talks to a TRON full node's HTTP wallet API (TronGrid-compatible).
// The chain is an external collaborator: the backend only asks it for
// addresses, balances and transfers and trusts the node's answers.
type Client struct {
	baseURL    string
	apiKey     string
	flatFee    float64
	httpClient *http.Client
}

// Default is the package-level default client.
var Default *Client

// NewClient creates a TRON node client, or nil when the node is not
// configured.
func NewClient(cfg *config.Config) *Client {
	if cfg == nil || cfg.TronNodeURL == "" {
		log.Printf("[TRON] Node not configured - skipping initialization")
		return nil
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.TronNodeURL, "/"),
		apiKey:     cfg.TronAPIKey,
		flatFee:    cfg.FlatNetworkFee,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetDefault sets the package-level default client.
func SetDefault(c *Client) {
	Default = c
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var payload []byte
	var err error
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request for %s: %w", path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("node request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		log.Printf("[TRON] %s failed: status=%d body=%s", path, resp.StatusCode, string(data))
		return fmt.Errorf("node request %s failed with status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return nil
}

// DepositAccount is a freshly generated deposit address and its key pair.
type DepositAccount struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey,omitempty"`
}

// GenerateDepositAddress asks the node for a new account to receive
// deposits on.
func (c *Client) GenerateDepositAddress(ctx context.Context) (*DepositAccount, error) {
	var acct DepositAccount
	if err := c.post(ctx, "/wallet/generateaddress", nil, &acct); err != nil {
		return nil, err
	}
	if acct.Address == "" || acct.PrivateKey == "" {
		return nil, errors.New("node returned an empty account")
	}
	return &acct, nil
}

// GetAddressBalance returns the confirmed TRX balance of an address.
func (c *Client) GetAddressBalance(ctx context.Context, address string) (float64, error) {
	var resp struct {
		Balance int64 `json:"balance"`
	}
	req := map[string]interface{}{"address": address, "visible": true}
	if err := c.post(ctx, "/wallet/getaccount", req, &resp); err != nil {
		return 0, err
	}
	return FromSun(resp.Balance), nil
}

// IsValidAddress checks an address against the node's validation endpoint.
func (c *Client) IsValidAddress(ctx context.Context, address string) bool {
	var resp struct {
		Result bool `json:"result"`
	}
	req := map[string]interface{}{"address": address, "visible": true}
	if err := c.post(ctx, "/wallet/validateaddress", req, &resp); err != nil {
		return false
	}
	return resp.Result
}

// SendTRX builds, signs and broadcasts a transfer from the holder of
// fromPrivateKey. Returns the transaction id.
func (c *Client) SendTRX(ctx context.Context, fromPrivateKey, fromAddress, toAddress string, amount float64) (string, error) {
	createReq := map[string]interface{}{
		"owner_address": fromAddress,
		"to_address":    toAddress,
		"amount":        ToSun(amount),
		"visible":       true,
	}
	var unsigned map[string]interface{}
	if err := c.post(ctx, "/wallet/createtransaction", createReq, &unsigned); err != nil {
		return "", err
	}
	if errMsg, ok := unsigned["Error"].(string); ok && errMsg != "" {
		return "", fmt.Errorf("create transaction: %s", errMsg)
	}

	signReq := map[string]interface{}{
		"transaction": unsigned,
		"privateKey":  fromPrivateKey,
	}
	var signed map[string]interface{}
	if err := c.post(ctx, "/wallet/gettransactionsign", signReq, &signed); err != nil {
		return "", err
	}

	var result struct {
		Result  bool   `json:"result"`
		TxID    string `json:"txid"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/wallet/broadcasttransaction", signed, &result); err != nil {
		return "", err
	}
	if !result.Result {
		return "", fmt.Errorf("broadcast rejected: %s", result.Message)
	}

	txid := result.TxID
	if txid == "" {
		if id, ok := signed["txID"].(string); ok {
			txid = id
		}
	}
	log.Printf("[TRON] Sent %.2f TRX to %s (txid=%s)", amount, toAddress, txid)
	return txid, nil
}

// EstimateTransactionFee returns the flat network fee for a TRX transfer.
// Bandwidth-covered transfers are free; the flat value covers the worst case.
func (c *Client) EstimateTransactionFee() float64 {
	return c.flatFee
}

// ToSun converts TRX to Sun.
func ToSun(trx float64) int64 {
	return int64(trx * sunPerTRX)
}

// FromSun converts Sun to TRX.
func FromSun(sun int64) float64 {
	return float64(sun) / sunPerTRX
}
