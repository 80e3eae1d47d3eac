package models

import "time"

// IngressLog is one captured request. The event ID is a ULID, so the
// primary key sorts lexicographically in capture order.
type IngressLog struct {
	EventID    string            `json:"eventId"`
	CapturedAt time.Time         `json:"capturedAt"`
	RemoteAddr string            `json:"remoteAddr,omitempty"`
	Method     string            `json:"method"`
	Host       string            `json:"host"`
	Path       string            `json:"path"`
	Query      map[string]string `json:"query"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body,omitempty"`
	CreatedAt  time.Time         `json:"createdAt,omitempty"`
}
