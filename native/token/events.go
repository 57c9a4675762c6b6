package token

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"presale/core/types"
)

const (
	// TypeMinted is emitted for every successful mint.
	TypeMinted = "token.minted"
	// TypeTransfer is emitted for balance moves between accounts.
	TypeTransfer = "token.transfer"
	// TypeApproval is emitted when an allowance is set.
	TypeApproval = "token.approval"
	// TypeOwnershipTransferred is emitted when the minting authority changes hands.
	TypeOwnershipTransferred = "token.ownership_transferred"
	// TypeMintingAllowedUpdated is emitted when the administrator toggles minting.
	TypeMintingAllowedUpdated = "token.minting_allowed_updated"
	// TypeMintLimitUpdated is emitted when the mint window duration changes.
	TypeMintLimitUpdated = "token.mint_limit_updated"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func mintedEvent(to [20]byte, amount *big.Int, supply *big.Int, ts int64) *types.Event {
	return &types.Event{
		Type: TypeMinted,
		Attributes: map[string]string{
			"to":        hex.EncodeToString(to[:]),
			"amount":    formatAmount(amount),
			"supply":    formatAmount(supply),
			"timestamp": strconv.FormatInt(ts, 10),
		},
	}
}

func transferEvent(from, to [20]byte, amount *big.Int, ts int64) *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"from":      hex.EncodeToString(from[:]),
			"to":        hex.EncodeToString(to[:]),
			"amount":    formatAmount(amount),
			"timestamp": strconv.FormatInt(ts, 10),
		},
	}
}

func approvalEvent(owner, spender [20]byte, amount *big.Int, ts int64) *types.Event {
	return &types.Event{
		Type: TypeApproval,
		Attributes: map[string]string{
			"owner":     hex.EncodeToString(owner[:]),
			"spender":   hex.EncodeToString(spender[:]),
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

func mintingAllowedEvent(allowed bool, ts int64) *types.Event {
	return &types.Event{
		Type: TypeMintingAllowedUpdated,
		Attributes: map[string]string{
			"allowed":   strconv.FormatBool(allowed),
			"timestamp": strconv.FormatInt(ts, 10),
		},
	}
}

func mintLimitEvent(seconds uint64, ts int64) *types.Event {
	return &types.Event{
		Type: TypeMintLimitUpdated,
		Attributes: map[string]string{
			"seconds":   strconv.FormatUint(seconds, 10),
			"timestamp": strconv.FormatInt(ts, 10),
		},
	}
}
