package sale

import "math/big"

// RatePair is the rational exchange rate between a payment asset and the
// reward token: PartsSell units of the payment asset buy PartsMint units of
// reward token. A zero pair is the sentinel for "asset not accepted".
type RatePair struct {
	PartsSell uint64
	PartsMint uint64
}

// Active reports whether the pair represents an accepted asset.
func (r RatePair) Active() bool {
	return r.PartsSell > 0 && r.PartsMint > 0
}

// PaymentCost computes the payment owed for tokenAmount reward tokens under
// the pair, using truncating division. Small amounts relative to PartsMint
// can legitimately cost zero; that is accepted behaviour, not a bug.
func PaymentCost(tokenAmount *big.Int, pair RatePair) *big.Int {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 || !pair.Active() {
		return big.NewInt(0)
	}
	cost := new(big.Int).Mul(tokenAmount, new(big.Int).SetUint64(pair.PartsSell))
	return cost.Quo(cost, new(big.Int).SetUint64(pair.PartsMint))
}

// Phase is the sale window state derived from the clock. There is no stored
// phase; every operation re-evaluates it on entry.
type Phase string

const (
	PhaseOpen   Phase = "open"
	PhaseClosed Phase = "closed"
)

// PhaseAt evaluates the sale phase for the given instant.
func PhaseAt(now, deadline int64) Phase {
	if now < deadline {
		return PhaseOpen
	}
	return PhaseClosed
}
