// Package auction implements the server-side auction state machine: the
// single authority over active lots, bid acceptance and auction expiry.
package auction

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/protocol"
)

// Broadcaster is what the engine needs from the client registry.
type Broadcaster interface {
	Register(identity string, sink chan<- string) error
	Unregister(identity string)
	Broadcast(line string)
}

// Scheduler fires a callback once after a delay, off the caller's goroutine.
type Scheduler interface {
	ScheduleOnce(delay time.Duration, fn func())
}

// Mirror receives a copy of every broadcast auction event, for external
// consumers outside the line protocol. May be nil.
type Mirror interface {
	Publish(typ EventType, payload any)
}

// Engine owns the active-lot collection. Every mutation (listing, bid,
// expiry) and its broadcast enqueue runs under one mutex; that single
// serialization point is what gives all connected clients a consistent
// event order per lot.
type Engine struct {
	mu       sync.Mutex
	lots     map[string]*Lot
	duration time.Duration

	clients Broadcaster
	sched   Scheduler
	mirror  Mirror
}

// NewEngine creates an engine auctioning lots for the given duration.
// mirror may be nil.
func NewEngine(clients Broadcaster, sched Scheduler, duration time.Duration, mirror Mirror) *Engine {
	return &Engine{
		lots:     make(map[string]*Lot),
		duration: duration,
		clients:  clients,
		sched:    sched,
		mirror:   mirror,
	}
}

// ListLot puts a new lot under auction. The current bid starts at the minimum
// price and exactly one expiry callback is scheduled for the lot. Rejected
// with ErrDuplicateListing if the owner already has an active lot with this
// name; rejections are for the caller only, nothing is broadcast.
func (e *Engine) ListLot(owner, name string, minimumPrice float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := LotID(owner, name)
	if _, exists := e.lots[id]; exists {
		return fmt.Errorf("list %q: %w", name, ErrDuplicateListing)
	}

	lot := &Lot{
		ID:           id,
		Name:         name,
		Owner:        owner,
		MinimumPrice: minimumPrice,
		CurrentBid:   minimumPrice,
	}
	e.lots[id] = lot

	// The callback is a no-op if the lot is already gone when it fires, so
	// there is nothing to cancel later.
	e.sched.ScheduleOnce(e.duration, func() { e.ExpireLot(id) })

	e.clients.Broadcast(protocol.NewProductLine(name, owner, minimumPrice))
	e.publish(EventTypeLotListed, LotListedPayload{
		LotID:        id,
		Name:         name,
		Owner:        owner,
		MinimumPrice: minimumPrice,
	})

	log.Info().
		Str("lot_id", id).
		Str("owner", owner).
		Float64("minimum_price", minimumPrice).
		Msg("lot listed")
	return nil
}

// PlaceBid applies a bid to an active lot. Rejections, in priority order:
// unknown lot, bid on own lot, amount not strictly above the current bid.
// An accepted bid mutates the lot and broadcasts the update; accepted bids on
// a lot are therefore strictly increasing.
func (e *Engine) PlaceBid(bidder, lotID string, amount float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lot, ok := e.lots[lotID]
	if !ok {
		return fmt.Errorf("bid on %q: %w", lotID, ErrLotNotFound)
	}
	if lot.Owner == bidder {
		return fmt.Errorf("bid on %q: %w", lotID, ErrOwnBid)
	}
	if amount <= lot.CurrentBid {
		return &BidTooLowError{CurrentBid: lot.CurrentBid}
	}

	lot.CurrentBid = amount
	lot.HighestBidder = bidder

	e.clients.Broadcast(protocol.BidUpdateLine(lot.Name, bidder, amount))
	e.publish(EventTypeBidPlaced, BidPlacedPayload{
		LotID:  lotID,
		Name:   lot.Name,
		Bidder: bidder,
		Amount: amount,
	})

	log.Info().
		Str("lot_id", lotID).
		Str("bidder", bidder).
		Float64("amount", amount).
		Msg("bid accepted")
	return nil
}

// ExpireLot finalizes a lot at the end of its auction. Removal and broadcast
// are atomic with respect to concurrent bids: once expiry holds the lock, any
// later bid on this id sees ErrLotNotFound. Firing against an already-removed
// lot is a no-op.
func (e *Engine) ExpireLot(lotID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lot, ok := e.lots[lotID]
	if !ok {
		log.Debug().Str("lot_id", lotID).Msg("expiry fired for removed lot")
		return
	}
	delete(e.lots, lotID)

	e.clients.Broadcast(protocol.AuctionEndLine(lot.Name, lot.Owner, lot.HighestBidder, lot.CurrentBid))
	e.publish(EventTypeLotExpired, LotExpiredPayload{
		LotID:    lotID,
		Name:     lot.Name,
		Owner:    lot.Owner,
		Winner:   lot.HighestBidder,
		FinalBid: lot.CurrentBid,
	})

	log.Info().
		Str("lot_id", lotID).
		Str("winner", lot.HighestBidder).
		Float64("final_bid", lot.CurrentBid).
		Msg("auction ended")
}

// AttachClient registers a new client and hands it the snapshot of all active
// lots. Both happen under the engine lock, so the snapshot reflects one
// consistent instant and the client cannot miss an event broadcast between
// registration and snapshot delivery. The sink must be a fresh buffered
// channel with free capacity.
func (e *Engine) AttachClient(identity string, sink chan<- string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.clients.Register(identity, sink); err != nil {
		return err
	}
	sink <- protocol.ProductListLine(e.snapshotLocked())
	return nil
}

// DetachClient removes a client from the registry. Idempotent.
func (e *Engine) DetachClient(identity string) {
	e.clients.Unregister(identity)
}

// Snapshot returns the current active lots, ordered by lot id.
func (e *Engine) Snapshot() []protocol.LotEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// ActiveLots returns the number of lots currently under auction.
func (e *Engine) ActiveLots() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lots)
}

func (e *Engine) snapshotLocked() []protocol.LotEntry {
	entries := make([]protocol.LotEntry, 0, len(e.lots))
	for _, lot := range e.lots {
		entries = append(entries, protocol.LotEntry{
			Name:         lot.Name,
			Owner:        lot.Owner,
			MinimumPrice: lot.MinimumPrice,
			CurrentBid:   lot.CurrentBid,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Owner != entries[j].Owner {
			return entries[i].Owner < entries[j].Owner
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

func (e *Engine) publish(typ EventType, payload any) {
	if e.mirror != nil {
		e.mirror.Publish(typ, payload)
	}
}
