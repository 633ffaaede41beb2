// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hooks exposes a shared Client with loading and error state, and
// per-operation state machines wrapping its methods.
package hooks

import (
	"context"
	"sync"

	"github.com/luxfi/log"

	"github.com/luxfi/fhevm"
)

type providerKey struct{}

// Snapshot is a consistent view of a Provider.
type Snapshot struct {
	Client    *fhevm.Client
	IsLoading bool
	Err       error
}

// Provider owns the Client shared by every hook created from it.
type Provider struct {
	log       log.Logger
	newClient func(fhevm.Config) *fhevm.Client

	lock    sync.RWMutex
	client  *fhevm.Client
	loading bool
	err     error
}

func NewProvider(logger log.Logger) *Provider {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Provider{
		log:       logger,
		newClient: fhevm.NewClient,
	}
}

// Initialize builds and initializes a new Client from cfg. On success it
// replaces the current client and clears the error; on failure the error is
// stored and returned.
func (p *Provider) Initialize(ctx context.Context, cfg fhevm.Config) error {
	p.lock.Lock()
	p.loading = true
	p.lock.Unlock()

	if cfg.Logger == nil {
		cfg.Logger = p.log
	}
	client := p.newClient(cfg)
	err := client.Initialize(ctx)

	p.lock.Lock()
	defer p.lock.Unlock()
	p.loading = false
	if err != nil {
		p.log.Error("FHEVM initialization error", log.Err(err))
		p.err = err
		return err
	}
	p.client = client
	p.err = nil
	return nil
}

// SetConfig initializes a client from cfg when none exists yet. A nil cfg
// or an existing client makes it a no-op.
func (p *Provider) SetConfig(ctx context.Context, cfg *fhevm.Config) error {
	if cfg == nil || p.Client() != nil {
		return nil
	}
	return p.Initialize(ctx, *cfg)
}

// Client returns the initialized client, or nil.
func (p *Provider) Client() *fhevm.Client {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.client
}

func (p *Provider) IsLoading() bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.loading
}

// Err returns the error of the last failed Initialize.
func (p *Provider) Err() error {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.err
}

func (p *Provider) Snapshot() Snapshot {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return Snapshot{
		Client:    p.client,
		IsLoading: p.loading,
		Err:       p.err,
	}
}

// WithProvider returns a copy of ctx carrying p.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the Provider carried by ctx, or
// fhevm.ErrContextUnavailable.
func FromContext(ctx context.Context) (*Provider, error) {
	p, ok := ctx.Value(providerKey{}).(*Provider)
	if !ok || p == nil {
		return nil, fhevm.ErrContextUnavailable
	}
	return p, nil
}
