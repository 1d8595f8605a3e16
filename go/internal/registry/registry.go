// Package registry maps connected client identities to their outbound sinks.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// ErrIdentityInUse is returned when a second client tries to register an
// identity that is already connected.
var ErrIdentityInUse = errors.New("identity in use")

// Registry holds the identity-to-sink mapping. It is locked independently of
// the auction engine, so connects and disconnects interleave freely with lot
// mutations.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]chan<- string

	delivered atomic.Uint64
	dropped   atomic.Uint64

	// onOverflow, if set, is invoked (on its own goroutine) with the identity
	// of a sink whose buffer was full during a broadcast. The transport uses
	// it to tear the slow connection down instead of stalling the caller.
	onOverflow func(identity string)
}

func New() *Registry {
	return &Registry{sinks: make(map[string]chan<- string)}
}

// SetOverflowHandler installs the slow-sink eviction hook. Must be called
// before any client registers.
func (r *Registry) SetOverflowHandler(fn func(identity string)) {
	r.onOverflow = fn
}

// Register stores a sink under an identity. Fails with ErrIdentityInUse if
// the identity is already connected; the existing session is unaffected.
func (r *Registry) Register(identity string, sink chan<- string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[identity]; exists {
		return fmt.Errorf("register %q: %w", identity, ErrIdentityInUse)
	}
	r.sinks[identity] = sink

	log.Info().
		Str("identity", identity).
		Int("total_clients", len(r.sinks)).
		Msg("client registered")
	return nil
}

// Unregister removes an identity. Removing an absent identity is a no-op,
// which absorbs races between disconnect detection and explicit removal.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[identity]; !exists {
		return
	}
	delete(r.sinks, identity)

	log.Info().
		Str("identity", identity).
		Int("total_clients", len(r.sinks)).
		Msg("client unregistered")
}

// Lookup returns the sink for an identity.
func (r *Registry) Lookup(identity string) (chan<- string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[identity]
	return sink, ok
}

// Broadcast enqueues one line to every registered sink. Enqueue is
// non-blocking: a full sink counts as a delivery failure, is logged, and the
// slow client is handed to the overflow handler; the remaining sinks still
// get the line and the caller never sees an error.
func (r *Registry) Broadcast(line string) {
	r.mu.RLock()
	targets := make(map[string]chan<- string, len(r.sinks))
	for identity, sink := range r.sinks {
		targets[identity] = sink
	}
	r.mu.RUnlock()

	for identity, sink := range targets {
		select {
		case sink <- line:
			r.delivered.Add(1)
		default:
			r.dropped.Add(1)
			log.Warn().
				Str("identity", identity).
				Msg("sink buffer full, dropping line and evicting client")
			if r.onOverflow != nil {
				go r.onOverflow(identity)
			}
		}
	}
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Stats returns totals of broadcast lines delivered and dropped.
func (r *Registry) Stats() (delivered, dropped uint64) {
	return r.delivered.Load(), r.dropped.Load()
}
