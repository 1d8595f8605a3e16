package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		want     Command
		wantWire string // expected ParseError wire text, empty for success
	}{
		{
			name: "valid_sell",
			line: "SELL:Vase:10.0",
			want: Command{Type: CmdSell, ProductName: "Vase", MinimumPrice: 10.0},
		},
		{
			name: "valid_sell_fractional",
			line: "SELL:Lamp:0.5",
			want: Command{Type: CmdSell, ProductName: "Lamp", MinimumPrice: 0.5},
		},
		{
			name: "valid_bid_with_compound_lot_id",
			line: "BID:A:Vase:15.0",
			want: Command{Type: CmdBid, LotID: "A:Vase", Amount: 15.0},
		},
		{
			name:     "bare_word",
			line:     "GARBAGE",
			wantWire: "Invalid command format",
		},
		{
			name:     "empty_line",
			line:     "",
			wantWire: "Invalid command format",
		},
		{
			name:     "unknown_command",
			line:     "STEAL:Vase:10",
			wantWire: "Unknown command STEAL",
		},
		{
			name:     "sell_missing_price",
			line:     "SELL:Vase",
			wantWire: "Invalid SELL command format",
		},
		{
			name:     "sell_bad_price",
			line:     "SELL:Vase:cheap",
			wantWire: "Invalid price format",
		},
		{
			name:     "sell_negative_price",
			line:     "SELL:Vase:-5",
			wantWire: "Invalid price format",
		},
		{
			name:     "sell_nan_price",
			line:     "SELL:Vase:NaN",
			wantWire: "Invalid price format",
		},
		{
			name:     "bid_infinite_amount",
			line:     "BID:A:Vase:+Inf",
			wantWire: "Invalid bid amount format",
		},
		{
			name:     "sell_name_with_delimiter",
			line:     "SELL:Va,se:10",
			wantWire: "Invalid product name",
		},
		{
			name:     "bid_missing_amount",
			line:     "BID:A:Vase",
			wantWire: "Invalid bid amount format",
		},
		{
			name:     "bid_no_fields",
			line:     "BID:",
			wantWire: "Invalid BID command format",
		},
		{
			name:     "bid_trailing_colon",
			line:     "BID:A:Vase:",
			wantWire: "Invalid BID command format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand(tt.line)
			if tt.wantWire != "" {
				require.Error(t, err)
				var pe *ParseError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.wantWire, pe.Wire)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"A", "alice", "Bob-2", "café"}
	for _, name := range valid {
		assert.True(t, ValidateName(name), name)
	}

	invalid := []string{"", "a:b", "a,b", "a;b", "a\nb", "a\tb"}
	for _, name := range invalid {
		assert.False(t, ValidateName(name), name)
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{10, "10.0"},
		{10.0, "10.0"},
		{15.5, "15.5"},
		{10.25, "10.25"},
		{0, "0.0"},
		{0.1, "0.1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.in))
	}
}

func TestEventLines(t *testing.T) {
	assert.Equal(t, "NEW_PRODUCT:Vase:A:10.0", NewProductLine("Vase", "A", 10.0))
	assert.Equal(t, "BID_UPDATE:Vase:B:15.0", BidUpdateLine("Vase", "B", 15.0))
	assert.Equal(t, "AUCTION_END:Vase:A:B:15.0", AuctionEndLine("Vase", "A", "B", 15.0))
	assert.Equal(t, "AUCTION_END:Vase:A:NO_WINNER:0", AuctionEndLine("Vase", "A", "", 10.0))
	assert.Equal(t, "ERROR: Product not found.", ErrorLine("Product not found."))
}

func TestProductListLine(t *testing.T) {
	assert.Equal(t, "PRODUCT_LIST:EMPTY", ProductListLine(nil))

	entries := []LotEntry{
		{Name: "Vase", Owner: "A", MinimumPrice: 10, CurrentBid: 15},
		{Name: "Lamp", Owner: "B", MinimumPrice: 2.5, CurrentBid: 2.5},
	}
	assert.Equal(t, "PRODUCT_LIST:Vase,A,10.0,15.0;Lamp,B,2.5,2.5;", ProductListLine(entries))
}
