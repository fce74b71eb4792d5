package embedder

import (
	"log/slog"
	"sync"

	"github.com/54b3r/pdfrag/internal/rag"
)

// Resolver constructs embedders once per distinct Config and hands the same
// instance to every later caller. Concurrent first calls for one key build
// at most one embedder. The zero value is not usable; call NewResolver.
type Resolver struct {
	log *slog.Logger

	mu      sync.Mutex
	entries map[Config]func() (rag.Embedder, error)
}

// NewResolver returns an empty Resolver. log receives configuration warnings.
func NewResolver(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{log: log, entries: make(map[Config]func() (rag.Embedder, error))}
}

// Resolve returns the cached embedder for cfg, constructing it on first use.
// Construction errors are cached with the key; a corrected config is a
// different key.
func (r *Resolver) Resolve(cfg Config) (rag.Embedder, error) {
	cfg = cfg.withDefaults()

	r.mu.Lock()
	get, ok := r.entries[cfg]
	if !ok {
		get = sync.OnceValues(func() (rag.Embedder, error) {
			WarnIfChatModel(r.log, cfg)
			return New(cfg)
		})
		r.entries[cfg] = get
	}
	r.mu.Unlock()

	return get()
}

// Len reports the number of cached configurations.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
