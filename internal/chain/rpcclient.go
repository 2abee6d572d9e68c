package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// RPCClient is a minimal Solana JSON-RPC client: just the methods the
// distributor's Chain Gateway needs (blockhash, submit, confirm, account
// reads), following the same request/response envelope shape as any other
// JSON-RPC backend.
type RPCClient struct {
	endpoint   string
	httpClient *http.Client
	requestID  atomic.Uint64
}

// NewRPCClient builds a client against a Solana JSON-RPC endpoint such as
// https://api.mainnet-beta.solana.com.
func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	id := c.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRPCUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ErrRPCUnavailable, resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("parse rpc response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%w: rpc error %d: %s", ErrRPCRejected, envelope.Error.Code, envelope.Error.Message)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// GetLatestBlockhash fetches a recent blockhash to scope the next
// transaction's lifetime.
func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []interface{}{
		map[string]string{"commitment": "confirmed"},
	}, &result); err != nil {
		return Blockhash{}, err
	}

	pk, err := ParsePubkey(result.Value.Blockhash)
	if err != nil {
		return Blockhash{}, fmt.Errorf("parse blockhash: %w", err)
	}
	return Blockhash(pk), nil
}

// SendTransaction submits a signed, serialized transaction and returns its
// signature (the transaction id).
func (c *RPCClient) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(raw)

	var sig string
	if err := c.call(ctx, "sendTransaction", []interface{}{
		encoded,
		map[string]interface{}{"encoding": "base64", "preflightCommitment": "confirmed"},
	}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

// SignatureStatus reports the confirmation state of a submitted transaction.
type SignatureStatus struct {
	Confirmed bool
	Err       json.RawMessage
}

// GetSignatureStatus polls for a transaction's current status. A nil result
// (ok=false) means the node has not seen the signature yet.
func (c *RPCClient) GetSignatureStatus(ctx context.Context, signature string) (status SignatureStatus, ok bool, err error) {
	var result struct {
		Value []*struct {
			ConfirmationStatus string          `json:"confirmationStatus"`
			Err                 json.RawMessage `json:"err"`
		} `json:"value"`
	}
	if err = c.call(ctx, "getSignatureStatuses", []interface{}{
		[]string{signature},
		map[string]bool{"searchTransactionHistory": true},
	}, &result); err != nil {
		return status, false, err
	}

	if len(result.Value) == 0 || result.Value[0] == nil {
		return status, false, nil
	}

	v := result.Value[0]
	status.Err = v.Err
	status.Confirmed = v.ConfirmationStatus == "confirmed" || v.ConfirmationStatus == "finalized"
	return status, true, nil
}

// AccountExists reports whether the given account has been created on chain,
// used to decide whether an ATA still needs a create instruction.
func (c *RPCClient) AccountExists(ctx context.Context, pk Pubkey) (bool, error) {
	var result struct {
		Value json.RawMessage `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", []interface{}{
		pk.String(),
		map[string]string{"encoding": "base64"},
	}, &result); err != nil {
		return false, err
	}
	return string(result.Value) != "null" && len(result.Value) > 0, nil
}

// TokenAccountBalance returns the base-unit balance held in a token account.
func (c *RPCClient) TokenAccountBalance(ctx context.Context, ata Pubkey) (uint64, error) {
	var result struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenAccountBalance", []interface{}{ata.String()}, &result); err != nil {
		return 0, err
	}

	var amount uint64
	if _, err := fmt.Sscanf(result.Value.Amount, "%d", &amount); err != nil {
		return 0, fmt.Errorf("parse token account balance: %w", err)
	}
	return amount, nil
}

// MintDecimals returns the decimals configured on a mint account.
func (c *RPCClient) MintDecimals(ctx context.Context, mint Pubkey) (uint8, error) {
	var result struct {
		Value struct {
			Data struct {
				Parsed struct {
					Info struct {
						Decimals uint8 `json:"decimals"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", []interface{}{
		mint.String(),
		map[string]string{"encoding": "jsonParsed"},
	}, &result); err != nil {
		return 0, err
	}
	return result.Value.Data.Parsed.Info.Decimals, nil
}
