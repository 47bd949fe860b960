// Package sdk is a typed JSON-RPC client for the donations node.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/wotori/solana-donations/native/donations"
	"github.com/wotori/solana-donations/rpc"
)

// Client talks to a donord JSON-RPC endpoint.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

// Option customises a Client.
type Option func(*Client)

// WithAuthToken sets the bearer token sent with every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a JSON-RPC error returned by the node. Registry is set when the
// donations program rejected the request.
type Error struct {
	Code     int
	Message  string
	Registry *rpc.RegistryErrorData
	Data     json.RawMessage
}

func (e *Error) Error() string {
	if e.Registry != nil {
		return fmt.Sprintf("rpc error %d: %s: %s (%d)", e.Code, e.Message, e.Registry.Name, e.Registry.Code)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RegistryErrorName returns the registry error name carried by err, if any.
func RegistryErrorName(err error) (string, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr.Registry != nil {
		return rpcErr.Registry.Name, true
	}
	return "", false
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      c.nextID.Add(1),
	}
	if params != nil {
		body.Params = []interface{}{params}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("node rpc %s failed: status=%d body=%s", method, resp.StatusCode, string(raw))
	}
	if rpcResp.Error != nil {
		rpcErr := &Error{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message, Data: rpcResp.Error.Data}
		var registry rpc.RegistryErrorData
		if len(rpcResp.Error.Data) > 0 && json.Unmarshal(rpcResp.Error.Data, &registry) == nil && registry.Name != "" {
			rpcErr.Registry = &registry
		}
		return rpcErr
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("node rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func (c *Client) Config(ctx context.Context) (*rpc.ConfigJSON, error) {
	var out rpc.ConfigJSON
	if err := c.call(ctx, "donations_getConfig", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Donor(ctx context.Context, wallet solana.PublicKey) (*rpc.DonorJSON, error) {
	var out rpc.DonorJSON
	if err := c.call(ctx, "donations_getDonor", map[string]string{"wallet": wallet.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DonorByID(ctx context.Context, donorID uint64) (*rpc.DonorJSON, error) {
	var out rpc.DonorJSON
	if err := c.call(ctx, "donations_getDonorById", map[string]uint64{"donorId": donorID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Leaderboard(ctx context.Context) ([]rpc.LeaderboardRowJSON, error) {
	var out []rpc.LeaderboardRowJSON
	if err := c.call(ctx, "donations_getLeaderboard", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveAddresses returns the record addresses of wallet together with the
// donor id a donation from it would reference.
func (c *Client) DeriveAddresses(ctx context.Context, wallet solana.PublicKey) (uint64, donations.Addresses, error) {
	var out struct {
		DonorID   uint64              `json:"donorId"`
		Addresses donations.Addresses `json:"addresses"`
	}
	if err := c.call(ctx, "donations_deriveAddresses", map[string]string{"wallet": wallet.String()}, &out); err != nil {
		return 0, donations.Addresses{}, err
	}
	return out.DonorID, out.Addresses, nil
}

func (c *Client) InitializeConfig(ctx context.Context, admin, treasury solana.PublicKey) (*rpc.ReceiptJSON, error) {
	var out rpc.ReceiptJSON
	params := map[string]string{"admin": admin.String(), "treasury": treasury.String()}
	if err := c.call(ctx, "donations_initializeConfig", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Donate transfers amount lamports from wallet to the treasury. A nil
// nickname leaves the stored nickname untouched.
func (c *Client) Donate(ctx context.Context, wallet solana.PublicKey, amount uint64, nickname *string) (*rpc.DonateResultJSON, error) {
	params := map[string]interface{}{
		"wallet": wallet.String(),
		"amount": strconv.FormatUint(amount, 10),
	}
	if nickname != nil {
		params["nickname"] = *nickname
	}
	var out rpc.DonateResultJSON
	if err := c.call(ctx, "donations_donate", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, wallet solana.PublicKey, nickname, description *string) (*rpc.ReceiptJSON, error) {
	params := map[string]interface{}{"wallet": wallet.String()}
	if nickname != nil {
		params["nickname"] = *nickname
	}
	if description != nil {
		params["description"] = *description
	}
	var out rpc.ReceiptJSON
	if err := c.call(ctx, "donations_updateProfile", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminResult is returned by the admin methods.
type AdminResult struct {
	Receipt rpc.ReceiptJSON `json:"receipt"`
	Config  rpc.ConfigJSON  `json:"config"`
}

func (c *Client) SetTreasury(ctx context.Context, admin, treasury solana.PublicKey) (*AdminResult, error) {
	return c.admin(ctx, "donations_setTreasury", map[string]interface{}{"admin": admin.String(), "treasury": treasury.String()})
}

func (c *Client) SetPaused(ctx context.Context, admin solana.PublicKey, paused bool) (*AdminResult, error) {
	return c.admin(ctx, "donations_setPaused", map[string]interface{}{"admin": admin.String(), "paused": paused})
}

func (c *Client) SetAdmin(ctx context.Context, admin, newAdmin solana.PublicKey) (*AdminResult, error) {
	return c.admin(ctx, "donations_setAdmin", map[string]interface{}{"admin": admin.String(), "newAdmin": newAdmin.String()})
}

func (c *Client) admin(ctx context.Context, method string, params map[string]interface{}) (*AdminResult, error) {
	var out AdminResult
	if err := c.call(ctx, method, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the lamport balance of addr.
func (c *Client) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	var out map[string]string
	if err := c.call(ctx, "ledger_getBalance", map[string]string{"address": addr.String()}, &out); err != nil {
		return 0, err
	}
	return strconv.ParseUint(out["lamports"], 10, 64)
}

// Airdrop credits lamports from the node faucet.
func (c *Client) Airdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) (*rpc.ReceiptJSON, error) {
	var out rpc.ReceiptJSON
	params := map[string]string{"address": addr.String(), "lamports": strconv.FormatUint(lamports, 10)}
	if err := c.call(ctx, "ledger_airdrop", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
