package auction

import (
	"errors"
	"fmt"

	"github.com/mcdev12/gavel/go/internal/protocol"
)

// Validation errors. These are reply-only: the offending client hears about
// them, nobody else does.
var (
	ErrDuplicateListing = errors.New("duplicate listing")
	ErrLotNotFound      = errors.New("lot not found")
	ErrOwnBid           = errors.New("cannot bid on own lot")
	ErrBidTooLow        = errors.New("bid too low")
)

// BidTooLowError carries the current bid so the rejection can echo it back
// and the bidder can retry.
type BidTooLowError struct {
	CurrentBid float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: current bid is %s", protocol.FormatPrice(e.CurrentBid))
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}
