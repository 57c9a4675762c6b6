package sale

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"presale/core/types"
)

const (
	// TypeRateSet is emitted when an exchange rate is configured or replaced.
	TypeRateSet = "sale.rate_set"
	// TypeRateUnset is emitted when an exchange rate is cleared.
	TypeRateUnset = "sale.rate_unset"
	// TypePurchase is emitted for every successful purchase.
	TypePurchase = "sale.purchase"
	// TypeWithdrawal is emitted when collected funds are swept to the owner.
	TypeWithdrawal = "sale.withdrawal"
	// TypeOwnershipTransferred is emitted when the sale administrator changes.
	TypeOwnershipTransferred = "sale.ownership_transferred"
)

// NativeAssetLabel identifies the chain-native asset in event attributes.
const NativeAssetLabel = "native"

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func assetLabel(asset [20]byte, native bool) string {
	if native {
		return NativeAssetLabel
	}
	return hex.EncodeToString(asset[:])
}

func rateSetEvent(asset [20]byte, native bool, pair RatePair, ts int64) *types.Event {
	return &types.Event{
		Type: TypeRateSet,
		Attributes: map[string]string{
			"asset":     assetLabel(asset, native),
			"partsSell": strconv.FormatUint(pair.PartsSell, 10),
			"partsMint": strconv.FormatUint(pair.PartsMint, 10),
			"timestamp": strconv.FormatInt(ts, 10),
		},
	}
}

func rateUnsetEvent(asset [20]byte, ts int64) *types.Event {
	return &types.Event{
		Type: TypeRateUnset,
		Attributes: map[string]string{
			"asset":     assetLabel(asset, false),
			"timestamp": strconv.FormatInt(ts, 10),
		},
	}
}

func purchaseEvent(r *PurchaseReceipt) *types.Event {
	return &types.Event{
		Type: TypePurchase,
		Attributes: map[string]string{
			"receipt":       r.ID,
			"buyer":         hex.EncodeToString(r.Buyer[:]),
			"asset":         assetLabel(r.Asset, r.Native),
			"tokenAmount":   formatAmount(r.TokenAmount),
			"paymentAmount": formatAmount(r.PaymentAmount),
			"timestamp":     strconv.FormatInt(r.CreatedAt, 10),
		},
	}
}

func withdrawalEvent(asset [20]byte, native bool, to [20]byte, amount *big.Int, ts int64) *types.Event {
	return &types.Event{
		Type: TypeWithdrawal,
		Attributes: map[string]string{
			"asset":     assetLabel(asset, native),
			"to":        hex.EncodeToString(to[:]),
			"amount":    formatAmount(amount),
			"timestamp": strconv.FormatInt(ts, 10),
		},
	}
}

func ownershipEvent(previous, next [20]byte, ts int64) *types.Event {
	return &types.Event{
		Type: TypeOwnershipTransferred,
		Attributes: map[string]string{
			"previousOwner": hex.EncodeToString(previous[:]),
			"newOwner":      hex.EncodeToString(next[:]),
			"timestamp":     strconv.FormatInt(ts, 10),
		},
	}
}
