package signing

import (
	"encoding/json"
	"time"
)

// canonicalBid fixes the encoding signatures are computed over: compact
// JSON with the keys in alphabetical order and the timestamp in RFC
// 3339 UTC. Field order here must never change, it is the wire contract
// with every client that ever produced a signature.
type canonicalBid struct {
	Amount  float64 `json:"amount"`
	Auction string  `json:"auction"`
	Bidder  string  `json:"bidder"`
	Ts      string  `json:"ts"`
}

// CanonicalBidPayload returns the exact bytes a bidder signs.
func CanonicalBidPayload(auctionID, bidderID string, amount float64, ts time.Time) ([]byte, error) {
	return json.Marshal(canonicalBid{
		Amount:  amount,
		Auction: auctionID,
		Bidder:  bidderID,
		Ts:      ts.UTC().Format(time.RFC3339Nano),
	})
}
