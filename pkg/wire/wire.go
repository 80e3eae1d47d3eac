// Package wire defines the websocket message envelope shared by the hydra
// daemon and its clients. Messages are JSON payloads tagged with a type
// prefix so the receiver can pick the concrete type before unmarshalling.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Direction orders a fetch over the lexicographic key space.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Inverse flips a direction.
func (d Direction) Inverse() Direction {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == Ascending || d == Descending
}

// Op names a request operation.
type Op string

const (
	OpFetchIngressLogs Op = "fetch_ingress_logs"
	OpExchangeBasis    Op = "exchange_basis"
)

// Request is a client-to-server call. Exactly one payload field matching
// Op is set.
type Request struct {
	ID string `json:"id"`
	Op Op     `json:"op"`

	FetchIngressLogs *FetchIngressLogsRequest `json:"fetchIngressLogs,omitempty"`
	ExchangeBasis    *ExchangeBasisRequest    `json:"exchangeBasis,omitempty"`
}

// Response answers the request carrying the same ID. Error is set instead
// of a payload when the operation failed.
type Response struct {
	RequestID string  `json:"requestId"`
	Error     *string `json:"error,omitempty"`

	FetchIngressLogs *FetchIngressLogsResponse `json:"fetchIngressLogs,omitempty"`
	ExchangeBasis    *ExchangeBasisResponse    `json:"exchangeBasis,omitempty"`
}

// ErrorResponse builds an error reply for a request.
func ErrorResponse(requestID string, err error) *Response {
	msg := err.Error()
	return &Response{RequestID: requestID, Error: &msg}
}

// IngressLogEntry pairs a stored log with its lexicographic key.
type IngressLogEntry struct {
	Key string     `json:"key"`
	Log IngressLog `json:"log"`
}

// IngressLog is the wire form of a captured request.
type IngressLog struct {
	EventID    string            `json:"eventId"`
	CapturedAt time.Time         `json:"capturedAt"`
	RemoteAddr string            `json:"remoteAddr,omitempty"`
	Method     string            `json:"method"`
	Host       string            `json:"host"`
	Path       string            `json:"path"`
	Query      map[string]string `json:"query,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body,omitempty"`
}

// FetchIngressLogsRequest pages over captured requests. Cursor is the
// exclusive key to continue from; empty means start from the edge implied
// by Direction.
type FetchIngressLogsRequest struct {
	Direction Direction `json:"direction"`
	Limit     int       `json:"limit"`
	Cursor    string    `json:"cursor,omitempty"`
}

// FetchIngressLogsResponse carries one page of results. MoreRecords is set
// when another page exists past the last returned key.
type FetchIngressLogsResponse struct {
	Items       []IngressLogEntry `json:"items"`
	Limit       int               `json:"limit"`
	MoreRecords bool              `json:"moreRecords"`
}

// BasisEvent is the wire form of a DAG frontier event.
type BasisEvent struct {
	Timestamp  int64    `json:"timestamp"`
	Hash       string   `json:"hash"`
	Precursors []string `json:"precursors,omitempty"`
}

// ExchangeBasisRequest sends the caller's frontier for merging.
type ExchangeBasisRequest struct {
	Events []BasisEvent `json:"events"`
}

// ExchangeBasisResponse returns the merged frontier of the receiving node.
type ExchangeBasisResponse struct {
	Events []BasisEvent `json:"events"`
}

var (
	requestPrefix  = []byte("Request|")
	responsePrefix = []byte("Response|")
)

// Serialize encodes a *Request or *Response as a tagged message.
func Serialize(message any) ([]byte, error) {
	var prefix []byte
	switch message.(type) {
	case *Request:
		prefix = requestPrefix
	case *Response:
		prefix = responsePrefix
	default:
		return nil, fmt.Errorf("unknown message type '%T'", message)
	}

	jsonBytes, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}

	return append(append([]byte{}, prefix...), jsonBytes...), nil
}

// Parse decodes a tagged message into *Request or *Response.
func Parse(messageBytes []byte) (any, error) {
	pipePos := bytes.IndexRune(messageBytes, '|')
	if pipePos <= 0 || pipePos == len(messageBytes)-1 {
		return nil, errors.New("message bytes are not a valid tagged envelope")
	}

	prefix := messageBytes[:pipePos+1]
	jsonBytes := messageBytes[pipePos+1:]

	switch {
	case bytes.Equal(prefix, requestPrefix):
		req := &Request{}
		if err := json.Unmarshal(jsonBytes, req); err != nil {
			return nil, err
		}
		return req, nil
	case bytes.Equal(prefix, responsePrefix):
		resp := &Response{}
		if err := json.Unmarshal(jsonBytes, resp); err != nil {
			return nil, err
		}
		return resp, nil
	default:
		return nil, fmt.Errorf("unexpected message prefix '%s'", prefix)
	}
}
