package provider

import (
	"context"
	"sync"

	"github.com/54b3r/pdfrag/internal/rag"
)

// Resolver builds one Generator per distinct Config and reuses it.
// Concurrent first calls for one key construct at most one Generator.
type Resolver struct {
	// opts are applied to every Generator after the config timeout.
	opts []GeneratorOption

	mu      sync.Mutex
	entries map[Config]func() (*Generator, error)
}

// NewResolver returns an empty Resolver.
func NewResolver(opts ...GeneratorOption) *Resolver {
	return &Resolver{opts: opts, entries: make(map[Config]func() (*Generator, error))}
}

// Resolve returns the cached Generator for cfg, constructing it on first
// use. ctx is only used by the first construction.
func (r *Resolver) Resolve(ctx context.Context, cfg Config) (*Generator, error) {
	cfg = cfg.withDefaults()

	r.mu.Lock()
	get, ok := r.entries[cfg]
	if !ok {
		get = sync.OnceValues(func() (*Generator, error) {
			cm, err := NewChatModel(context.WithoutCancel(ctx), cfg)
			if err != nil {
				return nil, err
			}
			opts := append([]GeneratorOption{WithTimeout(cfg.Timeout)}, r.opts...)
			return NewGenerator(context.WithoutCancel(ctx), cm, opts...)
		})
		r.entries[cfg] = get
	}
	r.mu.Unlock()

	return get()
}

// Bound is a rag.Generator whose backend is resolved on first use, so a
// misconfigured generation backend only fails requests that ask for an answer.
type Bound struct {
	resolver *Resolver
	cfg      Config
}

// Bind returns a Generator that resolves cfg through r when first called.
func (r *Resolver) Bind(cfg Config) *Bound {
	return &Bound{resolver: r, cfg: cfg}
}

// Generate resolves the backend and delegates to it.
func (b *Bound) Generate(ctx context.Context, question string, snippets []rag.Snippet) (string, error) {
	g, err := b.resolver.Resolve(ctx, b.cfg)
	if err != nil {
		return "", err
	}
	return g.Generate(ctx, question, snippets)
}
