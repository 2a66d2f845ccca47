package delivery

import (
	"context"
	"sync"

	"github.com/pypeaday/soonish-sub002/event"
)

// Transport delivers a message to a single channel. Implementations classify
// failures by wrapping ErrTemporary or ErrPermanent; an unwrapped error is
// treated as temporary.
type Transport interface {
	Send(ctx context.Context, ch event.Channel, msg Message) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, ch event.Channel, msg Message) error

func (f TransportFunc) Send(ctx context.Context, ch event.Channel, msg Message) error {
	return f(ctx, ch, msg)
}

// Registry maps channel kinds to transports. Safe for concurrent use;
// registration normally happens once at startup.
type Registry struct {
	mu     sync.RWMutex
	byKind map[event.ChannelKind]Transport
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[event.ChannelKind]Transport)}
}

// Register binds a transport to a channel kind, replacing any previous one.
func (r *Registry) Register(kind event.ChannelKind, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[kind] = t
}

// Lookup returns the transport for a kind, or ErrNoTransport.
func (r *Registry) Lookup(kind event.ChannelKind) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byKind[kind]
	if !ok {
		return nil, ErrNoTransport
	}
	return t, nil
}

// Kinds returns the registered channel kinds.
func (r *Registry) Kinds() []event.ChannelKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]event.ChannelKind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	return kinds
}
