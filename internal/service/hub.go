package service

import (
	"context"
	"fmt"

	"hydra/internal/metrics"
	"hydra/pkg/wire"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Hub serves the wire protocol over an accepted websocket connection:
// one read loop per connection, every request answered with a correlated
// response. The server never sends unsolicited messages.
type Hub struct {
	ingress *IngressService
	basis   *BasisService
	logger  *logrus.Logger
}

func NewHub(ingress *IngressService, basis *BasisService, logger *logrus.Logger) *Hub {
	return &Hub{ingress: ingress, basis: basis, logger: logger}
}

// ServeConn runs the request loop until the peer closes or ctx ends.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn, remote string) {
	connLogger := h.logger.WithField("remote", remote)
	connLogger.Info("Websocket session started")
	defer connLogger.Info("Websocket session ended")

	metrics.IncrementCounter("ws_sessions_total", nil, "Accepted websocket sessions")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return
			}
			if ctx.Err() != nil {
				return
			}
			connLogger.WithError(err).Warn("Websocket read failed")
			return
		}

		resp := h.dispatch(ctx, connLogger, data)
		out, err := wire.Serialize(resp)
		if err != nil {
			connLogger.WithError(err).Error("Failed to serialize response")
			continue
		}

		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			connLogger.WithError(err).Warn("Websocket write failed")
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, logger *logrus.Entry, data []byte) *wire.Response {
	msg, err := wire.Parse(data)
	if err != nil {
		logger.WithError(err).Warn("Undecodable websocket message")
		metrics.IncrementCounter("ws_decode_errors_total", nil, "Undecodable websocket messages")
		return wire.ErrorResponse("", fmt.Errorf("undecodable message: %w", err))
	}

	req, ok := msg.(*wire.Request)
	if !ok {
		logger.Warn("Unexpected response message from client")
		return wire.ErrorResponse("", fmt.Errorf("expected a request"))
	}

	metrics.IncrementCounter("ws_requests_total", map[string]string{
		"op": string(req.Op),
	}, "Websocket requests by operation")

	resp, err := h.handleRequest(ctx, req)
	if err != nil {
		logger.WithError(err).WithField("op", req.Op).Warn("Request failed")
		return wire.ErrorResponse(req.ID, err)
	}
	return resp
}

func (h *Hub) handleRequest(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	switch req.Op {
	case wire.OpFetchIngressLogs:
		if req.FetchIngressLogs == nil {
			return nil, fmt.Errorf("missing fetch_ingress_logs payload")
		}
		result, err := h.ingress.Fetch(ctx, req.FetchIngressLogs)
		if err != nil {
			return nil, err
		}
		return &wire.Response{RequestID: req.ID, FetchIngressLogs: result}, nil

	case wire.OpExchangeBasis:
		if req.ExchangeBasis == nil {
			return nil, fmt.Errorf("missing exchange_basis payload")
		}
		merged, err := h.basis.Exchange(ctx, req.ExchangeBasis.Events)
		if err != nil {
			return nil, err
		}
		return &wire.Response{
			RequestID:     req.ID,
			ExchangeBasis: &wire.ExchangeBasisResponse{Events: merged},
		}, nil

	default:
		return nil, fmt.Errorf("unknown operation %q", req.Op)
	}
}
