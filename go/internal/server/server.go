// Package server carries the auction line protocol over TCP and WebSocket
// connections: one worker per connection, a bounded outbound queue per client,
// and unconditional cleanup on disconnect.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/auction"
	"github.com/mcdev12/gavel/go/internal/protocol"
	"github.com/mcdev12/gavel/go/internal/registry"
)

// Config holds transport settings.
type Config struct {
	ListenAddr string

	// SendBuffer is the per-connection outbound queue depth. A client whose
	// queue is full during a broadcast is considered dead and evicted.
	SendBuffer int

	// MaxProtocolErrors closes a connection after this many malformed
	// commands. 0 keeps the connection open no matter what, matching the
	// original server's behavior.
	MaxProtocolErrors int

	WriteTimeout time.Duration
}

// DefaultConfig returns default transport settings.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        ":8888",
		SendBuffer:        64,
		MaxProtocolErrors: 0,
		WriteTimeout:      10 * time.Second,
	}
}

// Handshake rejection texts, fixed by the legacy clients.
const (
	msgNameInUse   = "Name already in use. Connection refused."
	msgInvalidName = "Invalid name. Connection refused."
)

// Server accepts connections, runs the handshake and feeds decoded commands
// into the auction engine.
type Server struct {
	cfg     Config
	engine  *auction.Engine
	reg     *registry.Registry
	started time.Time

	mu       sync.Mutex
	closers  map[string]io.Closer // identity or conn key -> transport
	draining bool

	ln    net.Listener
	ready chan struct{}
	wg    sync.WaitGroup
}

// New wires a server to an engine and registry, installing itself as the
// registry's slow-sink eviction handler.
func New(cfg Config, engine *auction.Engine, reg *registry.Registry) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		reg:     reg,
		started: time.Now(),
		closers: make(map[string]io.Closer),
		ready:   make(chan struct{}),
	}
	reg.SetOverflowHandler(s.evict)
	return s
}

// Serve accepts TCP connections until ctx is cancelled, then closes the
// listener and waits for all connection workers to finish.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.ln = ln
	close(s.ready)
	log.Info().Str("addr", ln.Addr().String()).Msg("auction server listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			log.Error().Err(err).Msg("accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	// Drop the remaining connections so their workers can finish. New
	// trackCloser calls after this point close their transport immediately.
	s.mu.Lock()
	s.draining = true
	for _, closer := range s.closers {
		closer.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Msg("auction server stopped")
	return nil
}

// handleConn runs one TCP connection: handshake, write pump, read loop,
// cleanup. The read loop blocks only this connection's worker.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connID := uuid.New().String()[:8]
	defer conn.Close()

	// Tracked from the first byte so shutdown can unblock a connection that
	// never completes the handshake. The ":" prefix cannot collide with an
	// identity; names with ":" are rejected at the handshake.
	connKey := ":" + connID
	s.trackCloser(connKey, conn)
	defer s.dropCloser(connKey)

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		log.Debug().Str("conn_id", connID).Msg("connection closed before handshake")
		return
	}
	identity := strings.TrimSpace(scanner.Text())

	if !protocol.ValidateName(identity) {
		writeLine(conn, protocol.ErrorLine(msgInvalidName))
		return
	}

	sess, err := s.attach(ctx, connID, identity, conn)
	if err != nil {
		if errors.Is(err, registry.ErrIdentityInUse) {
			writeLine(conn, protocol.ErrorLine(msgNameInUse))
		} else {
			log.Error().Err(err).Str("conn_id", connID).Msg("handshake failed")
		}
		return
	}

	write := func(line string) error {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		return writeLine(conn, line)
	}

	// Write pump: drains the sink so broadcast enqueue never blocks on this
	// client's socket. On teardown it flushes queued replies before the
	// socket closes underneath it.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for {
			select {
			case <-sess.ctx.Done():
				sess.drain(write)
				return
			case line := <-sess.sink:
				if err := write(line); err != nil {
					log.Warn().
						Err(err).
						Str("conn_id", connID).
						Str("identity", identity).
						Msg("write failed, closing connection")
					conn.Close()
					return
				}
			}
		}
	}()
	defer func() {
		sess.teardown()
		<-pumpDone
	}()

	for scanner.Scan() {
		if !sess.handleLine(scanner.Text()) {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Warn().
			Err(err).
			Str("conn_id", connID).
			Str("identity", identity).
			Msg("connection read error")
	}
}

// Ready is closed once the listener is bound; Addr is valid after that.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// evict closes the transport of a client whose sink overflowed. The closed
// transport trips that connection's own read loop, which runs the normal
// cleanup path.
func (s *Server) evict(identity string) {
	s.mu.Lock()
	closer, ok := s.closers[identity]
	s.mu.Unlock()
	if !ok {
		return
	}
	log.Warn().Str("identity", identity).Msg("evicting slow client")
	closer.Close()
}

func (s *Server) trackCloser(key string, c io.Closer) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		c.Close()
		return
	}
	s.closers[key] = c
	s.mu.Unlock()
}

func (s *Server) dropCloser(key string) {
	s.mu.Lock()
	delete(s.closers, key)
	s.mu.Unlock()
}

func writeLine(w io.Writer, line string) error {
	_, err := fmt.Fprintf(w, "%s\n", line)
	return err
}
