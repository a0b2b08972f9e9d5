package recognize

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Provider owns a process-wide recognition engine with an init-once/reuse
// lifecycle. The engine is constructed lazily on first Acquire, shared by
// all concurrent pipeline runs, and torn down on Shutdown. Discard marks a
// failed engine for disposal so the next Acquire re-initializes a fresh
// one; naive per-image engine construction is the dominant latency cost
// this avoids.
type Provider struct {
	cfg Config
	// newEngine is swappable for tests; defaults to NewEngine.
	newEngine func(context.Context, Config) (Engine, error)

	mu      sync.Mutex
	current *engineRef
	live    map[Engine]*engineRef
	closed  bool
}

// engineRef tracks one engine generation. A retired generation (discarded
// or superseded during shutdown) is closed once its last user releases it.
type engineRef struct {
	eng     Engine
	refs    int
	retired bool
}

// NewProvider returns a provider that will build engines from cfg.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg, newEngine: NewEngine, live: make(map[Engine]*engineRef)}
}

// NewProviderWithFactory is like NewProvider but constructs engines through
// factory instead of NewEngine. Hosts embedding a custom backend and tests
// use this.
func NewProviderWithFactory(cfg Config, factory func(context.Context, Config) (Engine, error)) *Provider {
	return &Provider{cfg: cfg, newEngine: factory, live: make(map[Engine]*engineRef)}
}

// ErrShutdown is returned by Acquire after Shutdown.
var ErrShutdown = errors.New("recognition provider is shut down")

// Acquire returns the shared engine, constructing it if needed. Every
// successful Acquire must be paired with a Release of the same engine.
func (p *Provider) Acquire(ctx context.Context) (Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrShutdown
	}
	if p.current == nil {
		eng, err := p.newEngine(ctx, p.cfg)
		if err != nil {
			return nil, err
		}
		slog.Debug("recognition engine initialized", "engine", p.cfg.Engine)
		p.current = &engineRef{eng: eng}
		p.live[eng] = p.current
	}
	p.current.refs++
	return p.current.eng, nil
}

// Release drops one reference to eng. A current engine stays warm for the
// next request; a retired one is closed when its last reference is dropped.
func (p *Provider) Release(eng Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.live[eng]
	if !ok {
		return
	}
	if ref.refs > 0 {
		ref.refs--
	}
	if ref.refs == 0 && ref.retired {
		delete(p.live, eng)
		closeQuietly(eng)
	}
}

// Discard retires a failed engine so the next Acquire builds a fresh one.
// Safe against racing replacements: only the matching generation is
// retired.
func (p *Provider) Discard(eng Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.live[eng]
	if !ok || ref.retired {
		return
	}
	slog.Warn("discarding recognition engine after failure", "engine", p.cfg.Engine)
	ref.retired = true
	if p.current == ref {
		p.current = nil
	}
	if ref.refs == 0 {
		delete(p.live, eng)
		closeQuietly(eng)
	}
}

// Shutdown closes all idle engine generations and rejects further Acquires.
// Generations still in use are closed by their final Release.
func (p *Provider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.current = nil
	var firstErr error
	for eng, ref := range p.live {
		ref.retired = true
		if ref.refs == 0 {
			delete(p.live, eng)
			if err := eng.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func closeQuietly(eng Engine) {
	if eng == nil {
		return
	}
	if err := eng.Close(); err != nil {
		slog.Warn("error closing recognition engine", "error", err)
	}
}
