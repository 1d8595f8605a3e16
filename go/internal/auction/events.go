package auction

// EventType identifies a mirrored auction event.
type EventType string

const (
	EventTypeLotListed  EventType = "LotListed"
	EventTypeBidPlaced  EventType = "BidPlaced"
	EventTypeLotExpired EventType = "LotExpired"
)

// LotListedPayload is published when a new lot enters the auction.
type LotListedPayload struct {
	LotID        string  `json:"lot_id"`
	Name         string  `json:"name"`
	Owner        string  `json:"owner"`
	MinimumPrice float64 `json:"minimum_price"`
}

// BidPlacedPayload is published for every accepted bid.
type BidPlacedPayload struct {
	LotID  string  `json:"lot_id"`
	Name   string  `json:"name"`
	Bidder string  `json:"bidder"`
	Amount float64 `json:"amount"`
}

// LotExpiredPayload is published when an auction ends. Winner is empty when
// the lot expired without bids.
type LotExpiredPayload struct {
	LotID    string  `json:"lot_id"`
	Name     string  `json:"name"`
	Owner    string  `json:"owner"`
	Winner   string  `json:"winner,omitempty"`
	FinalBid float64 `json:"final_bid"`
}
