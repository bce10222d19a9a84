package gatewayclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/nextlevelbuilder/gatewaycore/pkg/protocol"
)

// fakeGatewayServer is a minimal websocket server answering the 4 RPCs the
// client exercises, enough to verify request/response pairing-by-id.
func fakeGatewayServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := context.Background()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req protocol.RequestFrame
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}

			resp := protocol.ResponseFrame{Type: protocol.FrameTypeResponse, ID: req.ID, OK: true}
			switch req.Method {
			case protocol.MethodConnect:
				resp.Result = json.RawMessage(`{}`)
			case protocol.MethodAgentWait:
				resp.Result = json.RawMessage(`{"status":"ok"}`)
			case protocol.MethodAgent:
				resp.Result = json.RawMessage(`{}`)
			case protocol.MethodSessionsPatch:
				resp.Result = json.RawMessage(`{}`)
			case protocol.MethodSessionsDelete:
				resp.Result = json.RawMessage(`{}`)
			default:
				resp.OK = false
				resp.Error = &protocol.ErrorPayload{Message: "unknown method: " + req.Method}
			}

			out, _ := json.Marshal(resp)
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		}
	}))
}

func dialTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	wsURL := "ws" + srv.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return c
}

func TestAgentWaitRoundTrip(t *testing.T) {
	srv := fakeGatewayServer(t)
	defer srv.Close()
	c := dialTestClient(t, srv)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := c.AgentWait(ctx, "run-1", 1000)
	if err != nil {
		t.Fatalf("AgentWait: %v", err)
	}
	if result.Status != "ok" {
		t.Errorf("status = %q, want ok", result.Status)
	}
}

func TestSessionsPatchAndDelete(t *testing.T) {
	srv := fakeGatewayServer(t)
	defer srv.Close()
	c := dialTestClient(t, srv)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.SessionsPatch(ctx, "sess-1", "new label"); err != nil {
		t.Errorf("SessionsPatch: %v", err)
	}
	if err := c.SessionsDelete(ctx, "sess-1", true); err != nil {
		t.Errorf("SessionsDelete: %v", err)
	}
}

func TestCallReturnsErrorOnUnknownMethod(t *testing.T) {
	srv := fakeGatewayServer(t)
	defer srv.Close()
	c := dialTestClient(t, srv)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.call(ctx, "bogus.method", map[string]string{})
	if err == nil {
		t.Fatal("expected an error for an unknown method")
	}
}

func TestConcurrentCallsGetMatchedResponses(t *testing.T) {
	srv := fakeGatewayServer(t)
	defer srv.Close()
	c := dialTestClient(t, srv)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := c.AgentWait(ctx, "run-x", 1000)
			errCh <- err
		}()
	}
	for i := 0; i < 10; i++ {
		if err := <-errCh; err != nil {
			t.Errorf("concurrent AgentWait: %v", err)
		}
	}
}
