package server

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/auction"
	"github.com/mcdev12/gavel/go/internal/protocol"
)

// session is the transport-independent half of one client connection: an
// identity, a bounded outbound queue, and command dispatch into the engine.
// TCP and WebSocket handlers both drive a session.
type session struct {
	srv      *Server
	connID   string
	identity string
	sink     chan string
	ctx      context.Context
	cancel   context.CancelFunc

	violations int
}

// attach registers the identity, delivers the snapshot into a fresh sink and
// starts tracking the transport for eviction. Fails with ErrIdentityInUse if
// the name is taken; the existing session is unaffected.
func (s *Server) attach(ctx context.Context, connID, identity string, transport io.Closer) (*session, error) {
	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		srv:      s,
		connID:   connID,
		identity: identity,
		sink:     make(chan string, s.cfg.SendBuffer),
		ctx:      sessCtx,
		cancel:   cancel,
	}

	if err := s.engine.AttachClient(identity, sess.sink); err != nil {
		cancel()
		return nil, err
	}
	s.trackCloser(identity, transport)

	log.Info().
		Str("conn_id", connID).
		Str("identity", identity).
		Msg("client connected")
	return sess, nil
}

// teardown unregisters the session. Safe to call on every exit path; an
// in-flight listing or bid already applied stays valid.
func (sess *session) teardown() {
	sess.srv.dropCloser(sess.identity)
	sess.srv.engine.DetachClient(sess.identity)
	sess.cancel()
	log.Info().
		Str("conn_id", sess.connID).
		Str("identity", sess.identity).
		Msg("client disconnected")
}

// handleLine decodes and dispatches one client line. Returns false when the
// connection should close (protocol-violation budget exhausted).
func (sess *session) handleLine(line string) bool {
	line = strings.TrimRight(line, "\r")

	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		var pe *protocol.ParseError
		if errors.As(err, &pe) {
			sess.reply(protocol.ErrorLine(pe.Wire))
		}
		sess.violations++
		if max := sess.srv.cfg.MaxProtocolErrors; max > 0 && sess.violations >= max {
			sess.reply(protocol.ErrorLine("Too many protocol errors. Connection closed."))
			log.Warn().
				Str("identity", sess.identity).
				Int("violations", sess.violations).
				Msg("protocol violation budget exhausted")
			return false
		}
		return true
	}

	switch cmd.Type {
	case protocol.CmdSell:
		err = sess.srv.engine.ListLot(sess.identity, cmd.ProductName, cmd.MinimumPrice)
	case protocol.CmdBid:
		err = sess.srv.engine.PlaceBid(sess.identity, cmd.LotID, cmd.Amount)
	}
	if err != nil {
		sess.reply(protocol.ErrorLine(rejectionText(err)))
	}
	return true
}

// drain writes out whatever is already queued in the sink, stopping at the
// first write failure. Called by the write pump during teardown.
func (sess *session) drain(write func(line string) error) {
	for {
		select {
		case line := <-sess.sink:
			if write(line) != nil {
				return
			}
		default:
			return
		}
	}
}

// reply enqueues a reply-only line for this client. A full sink means the
// client is already being evicted; the line is dropped like any other failed
// delivery.
func (sess *session) reply(line string) {
	select {
	case sess.sink <- line:
	default:
		log.Warn().
			Str("identity", sess.identity).
			Msg("reply dropped, sink full")
	}
}

// rejectionText maps engine errors to the legacy wire texts.
func rejectionText(err error) string {
	var tooLow *auction.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		return "Bid must be higher than current bid: " + protocol.FormatPrice(tooLow.CurrentBid)
	case errors.Is(err, auction.ErrDuplicateListing):
		return "You already have a product with this name."
	case errors.Is(err, auction.ErrLotNotFound):
		return "Product not found."
	case errors.Is(err, auction.ErrOwnBid):
		return "Cannot bid on your own product."
	default:
		return "Internal server error."
	}
}
