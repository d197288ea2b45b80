package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tolelom/arcadechain/core"
)

// Client is a typed JSON-RPC client for a node.
type Client struct {
	url   string
	token string
	http  *http.Client
	seq   atomic.Uint64
}

// NewClient targets the RPC endpoint at url ("http://host:port/"). token may
// be empty.
func NewClient(url, token string) *Client {
	return &Client{url: url, token: token, http: &http.Client{Timeout: 30 * time.Second}}
}

// Call invokes method and decodes the result into out (which may be nil).
// JSON-RPC errors are returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: c.seq.Add(1), Method: method, Params: raw})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %s", method, resp.Status)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) BlockHeight(ctx context.Context) (int64, error) {
	var h int64
	err := c.Call(ctx, "getBlockHeight", struct{}{}, &h)
	return h, err
}

func (c *Client) Balance(ctx context.Context, addr string) (*BalanceResult, error) {
	var out BalanceResult
	if err := c.Call(ctx, "getBalance", map[string]string{"address": addr}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Player(ctx context.Context, addr string) (*core.Player, error) {
	var out core.Player
	if err := c.Call(ctx, "getPlayer", map[string]string{"address": addr}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Match(ctx context.Context, id uint64) (*core.Match, error) {
	var out core.Match
	if err := c.Call(ctx, "getMatch", map[string]uint64{"id": id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Board returns the raw blob of seat; the decoded board is left as JSON.
func (c *Client) Board(ctx context.Context, matchID uint64, seat int) (*BoardResult, error) {
	var out struct {
		BoardResult
		Board json.RawMessage `json:"board"`
	}
	params := map[string]any{"match_id": matchID, "seat": seat}
	if err := c.Call(ctx, "getBoard", params, &out); err != nil {
		return nil, err
	}
	res := out.BoardResult
	res.Board = out.Board
	return &res, nil
}

func (c *Client) Escrow(ctx context.Context, matchID uint64) (*core.Escrow, error) {
	var out core.Escrow
	if err := c.Call(ctx, "getEscrow", map[string]uint64{"match_id": matchID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitingLobby returns the open lobby of (gameID, fee).
func (c *Client) WaitingLobby(ctx context.Context, gameID string, fee uint64) (*core.Lobby, error) {
	var out core.Lobby
	if err := c.Call(ctx, "getLobby", map[string]any{"game_id": gameID, "fee": fee}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MatchesByPlayer(ctx context.Context, addr string) ([]uint64, error) {
	var out []uint64
	err := c.Call(ctx, "getMatchesByPlayer", map[string]string{"address": addr}, &out)
	return out, err
}

// SendTx submits tx to the mempool and returns the id the node assigned.
func (c *Client) SendTx(ctx context.Context, tx *core.Transaction) (string, error) {
	var out SendTxResult
	if err := c.Call(ctx, "sendTx", tx, &out); err != nil {
		return "", err
	}
	return out.TxID, nil
}
