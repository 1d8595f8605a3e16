// Package protocol implements the newline-delimited auction wire protocol.
//
// One command or event per line, colon-separated fields. The grammar is fixed
// by the deployed terminal clients, so every line rendered here has to match
// what they already parse, down to how prices are printed.
package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Command prefixes sent by clients.
const (
	CmdSell = "SELL"
	CmdBid  = "BID"
)

// Event prefixes sent by the server.
const (
	EventProductList = "PRODUCT_LIST"
	EventNewProduct  = "NEW_PRODUCT"
	EventBidUpdate   = "BID_UPDATE"
	EventAuctionEnd  = "AUCTION_END"
	EventError       = "ERROR"
)

// NoWinner is the AUCTION_END sentinel for a lot that expired without bids.
const NoWinner = "NO_WINNER"

// Command is a decoded client line.
type Command struct {
	// Type is CmdSell or CmdBid.
	Type string

	// Sell fields.
	ProductName  string
	MinimumPrice float64

	// Bid fields. LotID is the raw "owner:name" key.
	LotID  string
	Amount float64
}

// ParseError describes a malformed client line. The Wire text is what the
// offending client receives back; it matches the legacy server's replies.
type ParseError struct {
	Wire string
}

func (e *ParseError) Error() string {
	return "protocol: " + e.Wire
}

// ValidateName reports whether an identity or product name is safe to embed in
// the wire format. Delimiters and control characters would corrupt every frame
// that later carries the name, so they are rejected up front.
func ValidateName(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, ":,;") {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// ParseCommand decodes one client line into a Command.
func ParseCommand(line string) (Command, error) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) < 2 {
		return Command{}, &ParseError{Wire: "Invalid command format"}
	}

	switch parts[0] {
	case CmdSell:
		return parseSell(parts[1])
	case CmdBid:
		return parseBid(parts[1])
	default:
		return Command{}, &ParseError{Wire: "Unknown command " + parts[0]}
	}
}

func parseSell(rest string) (Command, error) {
	fields := strings.SplitN(rest, ":", 2)
	if len(fields) < 2 {
		return Command{}, &ParseError{Wire: "Invalid SELL command format"}
	}
	name := fields[0]
	if !ValidateName(name) {
		return Command{}, &ParseError{Wire: "Invalid product name"}
	}
	price, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || price < 0 || !isFinite(price) {
		return Command{}, &ParseError{Wire: "Invalid price format"}
	}
	return Command{Type: CmdSell, ProductName: name, MinimumPrice: price}, nil
}

// parseBid splits the amount off the last colon so that lot ids of the form
// "owner:name" survive intact: BID:<owner>:<name>:<amount>.
func parseBid(rest string) (Command, error) {
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return Command{}, &ParseError{Wire: "Invalid BID command format"}
	}
	lotID := rest[:idx]
	amount, err := strconv.ParseFloat(rest[idx+1:], 64)
	if err != nil || !isFinite(amount) {
		return Command{}, &ParseError{Wire: "Invalid bid amount format"}
	}
	return Command{Type: CmdBid, LotID: lotID, Amount: amount}, nil
}

// isFinite rejects the NaN/Inf values ParseFloat happily accepts; they would
// break bid comparisons.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FormatPrice renders a price the way the legacy clients expect: shortest
// decimal form, with a forced ".0" when the value is integral (10.0, 15.5).
func FormatPrice(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// LotEntry is one snapshot row in a PRODUCT_LIST line.
type LotEntry struct {
	Name         string
	Owner        string
	MinimumPrice float64
	CurrentBid   float64
}

// ProductListLine renders the handshake snapshot.
// PRODUCT_LIST:EMPTY or PRODUCT_LIST:<name>,<owner>,<min>,<bid>;...
func ProductListLine(entries []LotEntry) string {
	if len(entries) == 0 {
		return EventProductList + ":EMPTY"
	}
	var b strings.Builder
	b.WriteString(EventProductList + ":")
	for _, e := range entries {
		b.WriteString(e.Name)
		b.WriteByte(',')
		b.WriteString(e.Owner)
		b.WriteByte(',')
		b.WriteString(FormatPrice(e.MinimumPrice))
		b.WriteByte(',')
		b.WriteString(FormatPrice(e.CurrentBid))
		b.WriteByte(';')
	}
	return b.String()
}

// NewProductLine renders the listing broadcast.
func NewProductLine(name, owner string, minimumPrice float64) string {
	return fmt.Sprintf("%s:%s:%s:%s", EventNewProduct, name, owner, FormatPrice(minimumPrice))
}

// BidUpdateLine renders the accepted-bid broadcast.
func BidUpdateLine(name, bidder string, amount float64) string {
	return fmt.Sprintf("%s:%s:%s:%s", EventBidUpdate, name, bidder, FormatPrice(amount))
}

// AuctionEndLine renders the expiry broadcast. An empty winner means no bid
// was ever placed; the legacy sentinel is NO_WINNER with a literal 0 price.
func AuctionEndLine(name, owner, winner string, finalBid float64) string {
	if winner == "" {
		return fmt.Sprintf("%s:%s:%s:%s:0", EventAuctionEnd, name, owner, NoWinner)
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s", EventAuctionEnd, name, owner, winner, FormatPrice(finalBid))
}

// ErrorLine renders a reply-only error. The space after the prefix is part of
// the legacy format.
func ErrorLine(msg string) string {
	return EventError + ": " + msg
}
