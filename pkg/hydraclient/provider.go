package hydraclient

import (
	"context"
	"sync"
)

// Provider hands out a process-wide shared Client. The underlying Client
// is constructed at most once, on the first Get, and Get never returns the
// handle before its connection is open.
type Provider struct {
	cfg    Config
	once   sync.Once
	client *Client
}

// NewProvider prepares a Provider without connecting. Nothing happens
// until the first Get.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// Get returns the shared Client, constructing it on first use and waiting
// for it to become ready. Concurrent callers share one Client; every call
// waits for readiness independently, so a nil error always means the
// returned handle is usable.
func (p *Provider) Get(ctx context.Context) (*Client, error) {
	p.once.Do(func() {
		p.client = New(p.cfg)
	})
	if err := p.client.Ready(ctx); err != nil {
		return nil, err
	}
	return p.client, nil
}

// Close shuts down the shared Client if it was ever constructed.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
