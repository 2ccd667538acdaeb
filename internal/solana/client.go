package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"buyback-bot-go/internal/config"

	"github.com/sirupsen/logrus"
)

// ErrTransactionFailed marks a transaction the cluster executed and rejected;
// polling its status again cannot change the outcome
var ErrTransactionFailed = errors.New("transaction failed")

// Client represents a Solana RPC client
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *logrus.Logger
}

// ClientConfig contains configuration for Solana client
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// RPCRequest represents a JSON-RPC request
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// RPCResponse represents a JSON-RPC response
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface, embedding the upstream payload
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// NewClient creates a new Solana RPC client
func NewClient(cfg ClientConfig, logger *logrus.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// makeRequest makes a JSON-RPC request to Solana
func (c *Client) makeRequest(ctx context.Context, method string, params interface{}) (*RPCResponse, error) {
	request := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": c.endpoint,
	}).Debug("Making RPC request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(responseBody))
	}

	var rpcResponse RPCResponse
	if err := json.Unmarshal(responseBody, &rpcResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if rpcResponse.Error != nil {
		return nil, rpcResponse.Error
	}

	if len(rpcResponse.Result) == 0 || string(rpcResponse.Result) == "null" {
		return nil, fmt.Errorf("%s returned no result: %s", method, string(responseBody))
	}

	return &rpcResponse, nil
}

// GetBalance gets account balance in lamports
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	params := []interface{}{
		address,
		map[string]interface{}{"commitment": "confirmed"},
	}

	resp, err := c.makeRequest(ctx, "getBalance", params)
	if err != nil {
		return 0, fmt.Errorf("getBalance failed: %w", err)
	}

	var balResp struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(resp.Result, &balResp); err != nil {
		return 0, fmt.Errorf("failed to unmarshal balance: %w", err)
	}

	return balResp.Value, nil
}

// GetBalanceSOL returns the account balance in whole SOL. Any failure is
// logged and reported as 0.0 so read-only callers degrade instead of failing.
func (c *Client) GetBalanceSOL(ctx context.Context, address string) float64 {
	lamports, err := c.GetBalance(ctx, address)
	if err != nil {
		c.logger.WithError(err).WithField("address", address).Warn("Failed to get SOL balance")
		return 0.0
	}
	return config.ConvertLamportsToSOL(lamports)
}

// SendTransaction submits a base64-encoded signed transaction, requesting
// confirmed preflight commitment, and returns the signature
func (c *Client) SendTransaction(ctx context.Context, encodedTx string) (string, error) {
	params := []interface{}{
		encodedTx,
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": "confirmed",
		},
	}

	resp, err := c.makeRequest(ctx, "sendTransaction", params)
	if err != nil {
		return "", fmt.Errorf("sendTransaction failed: %w", err)
	}

	var signature string
	if err := json.Unmarshal(resp.Result, &signature); err != nil {
		return "", fmt.Errorf("invalid response format for sendTransaction: %w", err)
	}

	return signature, nil
}

// GetTokenSupply returns the decimal precision of a mint
func (c *Client) GetTokenSupply(ctx context.Context, mint string) (uint8, error) {
	params := []interface{}{
		mint,
		map[string]interface{}{"commitment": "confirmed"},
	}

	resp, err := c.makeRequest(ctx, "getTokenSupply", params)
	if err != nil {
		return 0, fmt.Errorf("getTokenSupply failed: %w", err)
	}

	var supplyResp struct {
		Value struct {
			Amount   string `json:"amount"`
			Decimals uint8  `json:"decimals"`
		} `json:"value"`
	}
	if err := json.Unmarshal(resp.Result, &supplyResp); err != nil {
		return 0, fmt.Errorf("failed to unmarshal token supply: %w", err)
	}

	return supplyResp.Value.Decimals, nil
}

// AccountExists reports whether an account is present on chain
func (c *Client) AccountExists(ctx context.Context, address string) (bool, error) {
	params := []interface{}{
		address,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": "confirmed",
		},
	}

	resp, err := c.makeRequest(ctx, "getAccountInfo", params)
	if err != nil {
		return false, fmt.Errorf("getAccountInfo failed: %w", err)
	}

	var accResp struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(resp.Result, &accResp); err != nil {
		return false, fmt.Errorf("failed to unmarshal account info: %w", err)
	}

	return len(accResp.Value) > 0 && string(accResp.Value) != "null", nil
}

// GetTokenAccountBalance returns the raw (integer) balance of a token account.
// The account must exist; callers ensure the ATA before reading.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account string) (uint64, error) {
	params := []interface{}{
		account,
		map[string]interface{}{"commitment": "confirmed"},
	}

	resp, err := c.makeRequest(ctx, "getTokenAccountBalance", params)
	if err != nil {
		return 0, fmt.Errorf("getTokenAccountBalance failed: %w", err)
	}

	var balResp struct {
		Value struct {
			Amount   string `json:"amount"`
			Decimals uint8  `json:"decimals"`
		} `json:"value"`
	}
	if err := json.Unmarshal(resp.Result, &balResp); err != nil {
		return 0, fmt.Errorf("failed to unmarshal token balance: %w", err)
	}

	raw, err := strconv.ParseUint(balResp.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid raw token amount %q: %w", balResp.Value.Amount, err)
	}

	return raw, nil
}

// GetLatestBlockhash gets the latest blockhash
func (c *Client) GetLatestBlockhash(ctx context.Context) (string, error) {
	params := []interface{}{
		map[string]interface{}{"commitment": "confirmed"},
	}

	resp, err := c.makeRequest(ctx, "getLatestBlockhash", params)
	if err != nil {
		return "", fmt.Errorf("getLatestBlockhash failed: %w", err)
	}

	var bhResp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(resp.Result, &bhResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal blockhash: %w", err)
	}

	return bhResp.Value.Blockhash, nil
}

// ConfirmTransaction checks whether a transaction reached confirmed commitment
func (c *Client) ConfirmTransaction(ctx context.Context, signature string) error {
	params := []interface{}{
		[]string{signature},
		map[string]interface{}{"searchTransactionHistory": true},
	}

	resp, err := c.makeRequest(ctx, "getSignatureStatuses", params)
	if err != nil {
		return fmt.Errorf("getSignatureStatuses failed: %w", err)
	}

	var status struct {
		Value []*struct {
			Err                interface{} `json:"err"`
			ConfirmationStatus string      `json:"confirmationStatus"`
		} `json:"value"`
	}
	if err := json.Unmarshal(resp.Result, &status); err != nil {
		return fmt.Errorf("failed to unmarshal signature status: %w", err)
	}

	if len(status.Value) == 0 || status.Value[0] == nil {
		return fmt.Errorf("transaction %s not found", signature)
	}
	if status.Value[0].Err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, signature, status.Value[0].Err)
	}
	if s := status.Value[0].ConfirmationStatus; s != "confirmed" && s != "finalized" {
		return fmt.Errorf("transaction %s not confirmed, status: %s", signature, s)
	}

	return nil
}

// WaitForConfirmation polls until the transaction confirms or ctx expires
func (c *Client) WaitForConfirmation(ctx context.Context, signature string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := c.ConfirmTransaction(ctx, signature)
			if err == nil {
				return nil
			}
			if errors.Is(err, ErrTransactionFailed) {
				return err
			}
			// Not confirmed yet, keep polling
			c.logger.WithField("signature", signature).Debug("Waiting for confirmation...")
		}
	}
}
