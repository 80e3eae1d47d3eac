package hydraclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hydra/internal/retry"
	"hydra/pkg/wire"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWireServer runs a websocket node that answers every request with
// handle's response, correlated to the request ID.
func startWireServer(t *testing.T, handle func(req *wire.Request) *wire.Response) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "unexpected close")

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			msg, err := wire.Parse(data)
			if err != nil {
				continue
			}
			req, ok := msg.(*wire.Request)
			if !ok {
				continue
			}

			resp := handle(req)
			if resp.RequestID == "" {
				resp.RequestID = req.ID
			}
			out, err := wire.Serialize(resp)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echoFetchHandler(req *wire.Request) *wire.Response {
	return &wire.Response{
		FetchIngressLogs: &wire.FetchIngressLogsResponse{
			Items: []wire.IngressLogEntry{{Key: "01TESTKEY"}},
			Limit: req.FetchIngressLogs.Limit,
		},
	}
}

func testClientConfig(url string) Config {
	logger, _ := test.NewNullLogger()
	return Config{
		URL:            url,
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 2 * time.Second,
		Backoff: retry.BackoffConfig{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  5,
		},
		Logger: logger,
	}
}

func TestClient_ReadyResolves(t *testing.T) {
	url := startWireServer(t, echoFetchHandler)

	c := New(testClientConfig(url))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Ready(ctx))
	assert.Equal(t, StateOpen, c.State())

	// Ready is safe to call again once resolved.
	require.NoError(t, c.Ready(ctx))
}

func TestClient_FetchIngressLogs(t *testing.T) {
	url := startWireServer(t, echoFetchHandler)

	c := New(testClientConfig(url))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Ready(ctx))

	resp, err := c.FetchIngressLogs(ctx, &wire.FetchIngressLogsRequest{
		Direction: wire.Descending,
		Limit:     7,
	})
	require.NoError(t, err)

	assert.Equal(t, 7, resp.Limit)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "01TESTKEY", resp.Items[0].Key)
}

func TestClient_ExchangeBasis(t *testing.T) {
	url := startWireServer(t, func(req *wire.Request) *wire.Response {
		return &wire.Response{
			ExchangeBasis: &wire.ExchangeBasisResponse{
				Events: req.ExchangeBasis.Events,
			},
		}
	})

	c := New(testClientConfig(url))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Ready(ctx))

	sent := []wire.BasisEvent{{Timestamp: 100, Hash: strings.Repeat("ab", 32)}}
	got, err := c.ExchangeBasis(ctx, sent)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestClient_NodeErrorPropagates(t *testing.T) {
	url := startWireServer(t, func(req *wire.Request) *wire.Response {
		msg := "store unavailable"
		return &wire.Response{Error: &msg}
	})

	c := New(testClientConfig(url))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Ready(ctx))

	_, err := c.FetchIngressLogs(ctx, &wire.FetchIngressLogsRequest{Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
}

func TestClient_FetchesBodiesLargerThanOneDefaultFrame(t *testing.T) {
	large := bytes.Repeat([]byte("x"), 100<<10)
	url := startWireServer(t, func(req *wire.Request) *wire.Response {
		return &wire.Response{
			FetchIngressLogs: &wire.FetchIngressLogsResponse{
				Items: []wire.IngressLogEntry{{
					Key: "01BIGBODYKEY",
					Log: wire.IngressLog{EventID: "01BIGBODYKEY", Body: large},
				}},
				Limit: 1,
			},
		}
	})

	c := New(testClientConfig(url))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Ready(ctx))

	resp, err := c.FetchIngressLogs(ctx, &wire.FetchIngressLogsRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, large, resp.Items[0].Log.Body)
}

func TestClient_InFlightCallFailsWithConnectionLost(t *testing.T) {
	// A node that drops the connection after reading a request, without
	// ever replying.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.Read(r.Context())
		conn.Close(websocket.StatusGoingAway, "dropping")
	}))
	t.Cleanup(srv.Close)

	c := New(testClientConfig("ws" + strings.TrimPrefix(srv.URL, "http")))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Ready(ctx))

	_, err := c.FetchIngressLogs(ctx, &wire.FetchIngressLogsRequest{Limit: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.NotErrorIs(t, err, ErrClosed, "a dropped connection must not look like a closed client")
}

func TestClient_ReadyTimesOutWhenUnreachable(t *testing.T) {
	c := New(testClientConfig("ws://127.0.0.1:1"))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Ready(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_WaitForObservesFailedState(t *testing.T) {
	c := New(testClientConfig("ws://127.0.0.1:1"))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := c.WaitFor(ctx, func(s ConnectionState) bool { return s == StateFailed })
	require.NoError(t, err)
	assert.Equal(t, StateFailed, s)
}

func TestClient_CloseIsTerminal(t *testing.T) {
	c := New(testClientConfig("ws://127.0.0.1:1"))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")

	assert.Equal(t, StateClosed, c.State())

	err := c.Ready(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.FetchIngressLogs(context.Background(), &wire.FetchIngressLogsRequest{Limit: 1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_CallBeforeConnectedFailsFast(t *testing.T) {
	c := New(testClientConfig("ws://127.0.0.1:1"))
	defer c.Close()

	_, err := c.FetchIngressLogs(context.Background(), &wire.FetchIngressLogsRequest{Limit: 1})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_ReconnectsAfterServerDrop(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		// Drop the first connection immediately to force a reconnect.
		if conns.Add(1) == 1 {
			conn.Close(websocket.StatusGoingAway, "restart")
			return
		}

		defer conn.Close(websocket.StatusInternalError, "unexpected close")
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			msg, err := wire.Parse(data)
			if err != nil {
				continue
			}
			req := msg.(*wire.Request)
			resp := echoFetchHandler(req)
			resp.RequestID = req.ID
			out, _ := wire.Serialize(resp)
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(testClientConfig("ws" + strings.TrimPrefix(srv.URL, "http")))
	defer c.Close()

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := c.Ready(ctx); err != nil {
			return false
		}
		_, err := c.FetchIngressLogs(ctx, &wire.FetchIngressLogsRequest{Limit: 1})
		return err == nil
	}, 10*time.Second, 50*time.Millisecond, "client must recover after the node drops the connection")

	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}
