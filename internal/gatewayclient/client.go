// Package gatewayclient implements the small set of gateway RPCs the core
// consumes (§6): agent, agent.wait, sessions.patch, sessions.delete. It is
// grounded on the zalo/personal/protocol WSClient's use of
// github.com/coder/websocket (no compression; this client sets a 4MB read
// limit) and on cmd/agent_chat_client.go's request/response-frame
// pairing-by-id idiom,
// adapted from a blocking REPL client into a concurrent-safe RPC client
// with one read-pump goroutine dispatching replies to waiting callers.
package gatewayclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/gatewaycore/internal/subagent"
	"github.com/nextlevelbuilder/gatewaycore/pkg/protocol"
)

var _ subagent.GatewayClient = (*Client)(nil)

// Client is a JSON-RPC-over-websocket client for the gateway's 4 consumed
// methods, satisfying subagent.GatewayClient.
type Client struct {
	conn  *websocket.Conn
	token string

	mu      sync.Mutex
	writeMu sync.Mutex
	pending map[string]chan protocol.ResponseFrame
	closed  bool
}

// Dial connects to the gateway's websocket endpoint and starts the read
// pump. token, if non-empty, authenticates via the connect RPC.
func Dial(ctx context.Context, wsURL, token string) (*Client, error) {
	opts := &websocket.DialOptions{HTTPClient: http.DefaultClient}
	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return nil, fmt.Errorf("gatewayclient: dial: %w", err)
	}
	conn.SetReadLimit(4 << 20)

	c := &Client{
		conn:    conn,
		token:   token,
		pending: make(map[string]chan protocol.ResponseFrame),
	}
	go c.readPump()

	if token != "" {
		if _, err := c.call(ctx, protocol.MethodConnect, map[string]string{"token": token}); err != nil {
			c.Close()
			return nil, fmt.Errorf("gatewayclient: connect auth: %w", err)
		}
	}
	return c, nil
}

// Close shuts down the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close(websocket.StatusNormalClosure, "client closing")
}

func (c *Client) readPump() {
	ctx := context.Background()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.failAllPending(err)
			return
		}
		var resp protocol.ResponseFrame
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- protocol.ResponseFrame{ID: id, OK: false, Error: &protocol.ErrorPayload{Message: err.Error()}}
	}
	c.pending = make(map[string]chan protocol.ResponseFrame)
}

// call sends a request frame and blocks until the matching response
// arrives or ctx is done.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	replyCh := make(chan protocol.ResponseFrame, 1)
	c.mu.Lock()
	c.pending[id] = replyCh
	c.mu.Unlock()

	frame := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: paramsJSON,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	c.writeMu.Lock()
	writeErr := c.conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("gatewayclient: write %s: %w", method, writeErr)
	}

	select {
	case resp := <-replyCh:
		if !resp.OK {
			if resp.Error != nil {
				return nil, fmt.Errorf("gatewayclient: %s: %s", method, resp.Error.Message)
			}
			return nil, fmt.Errorf("gatewayclient: %s: request rejected", method)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// agentWaitWire mirrors the agent.wait RPC's reply shape over the
// wire (§6) before conversion into subagent.AgentWaitResult.
type agentWaitWire struct {
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// AgentWait implements subagent.GatewayClient.
func (c *Client) AgentWait(ctx context.Context, runID string, timeoutMs int) (subagent.AgentWaitResult, error) {
	raw, err := c.call(ctx, protocol.MethodAgentWait, map[string]any{
		"runId":     runID,
		"timeoutMs": timeoutMs,
	})
	if err != nil {
		return subagent.AgentWaitResult{}, err
	}
	var wire agentWaitWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return subagent.AgentWaitResult{}, err
	}
	return subagent.AgentWaitResult{
		Status:    wire.Status,
		StartedAt: wire.StartedAt,
		EndedAt:   wire.EndedAt,
		Error:     wire.Error,
	}, nil
}

// SendAgentMessage implements the `agent` RPC (§6).
func (c *Client) SendAgentMessage(ctx context.Context, params subagent.AgentMessageParams) error {
	_, err := c.call(ctx, protocol.MethodAgent, map[string]any{
		"sessionKey":     params.SessionKey,
		"message":        params.Message,
		"channel":        params.Channel,
		"accountId":      params.AccountID,
		"to":             params.To,
		"threadId":       params.ThreadID,
		"deliver":        params.Deliver,
		"idempotencyKey": params.IdempotencyKey,
		"expectFinal":    params.ExpectFinal,
	})
	return err
}

// SessionsPatch implements the `sessions.patch` RPC.
func (c *Client) SessionsPatch(ctx context.Context, key, label string) error {
	_, err := c.call(ctx, protocol.MethodSessionsPatch, map[string]any{
		"key":   key,
		"label": label,
	})
	return err
}

// SessionsDelete implements the `sessions.delete` RPC.
func (c *Client) SessionsDelete(ctx context.Context, key string, deleteTranscript bool) error {
	_, err := c.call(ctx, protocol.MethodSessionsDelete, map[string]any{
		"key":              key,
		"deleteTranscript": deleteTranscript,
	})
	return err
}
