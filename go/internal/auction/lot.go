package auction

// Lot is one item under live auction. A lot is identified by its owner and
// name; at most one active lot per (owner, name) pair exists at any time.
type Lot struct {
	ID            string
	Name          string
	Owner         string
	MinimumPrice  float64
	CurrentBid    float64
	HighestBidder string // empty until a bid above the floor lands
}

// LotID builds the canonical lot key. The format is part of the wire protocol:
// clients bid with BID:<owner>:<name>:<amount>.
func LotID(owner, name string) string {
	return owner + ":" + name
}
