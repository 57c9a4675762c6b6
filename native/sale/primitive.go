package sale

import (
	"math/big"

	"presale/core/types"
)

// State describes the functionality the sale engine needs from the
// surrounding state implementation.
type State interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out *[][]byte) error
	AppendEvent(evt *types.Event)
}

// TransferPrimitive is the capability each payment asset implements. Pulls
// follow conventional fungible-token semantics: insufficient balance or
// allowance rejects the call outright, never partially.
type TransferPrimitive interface {
	// TransferFrom pulls funds from an account into the recipient, spending
	// the allowance the account granted the recipient.
	TransferFrom(asset, from, to [20]byte, amount *big.Int) error
	// Transfer moves funds the engine itself holds; used for refunds and
	// post-sale sweeps.
	Transfer(asset, from, to [20]byte, amount *big.Int) error
	// BalanceOf reports an account's holdings of the asset.
	BalanceOf(asset, account [20]byte) (*big.Int, error)
}

// NativeLedger gives the engine access to chain-native balances.
type NativeLedger interface {
	NativeTransfer(from, to [20]byte, amount *big.Int) error
	NativeBalance(account [20]byte) (*big.Int, error)
}

// Minter is the narrow capability the sale engine needs from the reward
// token. The token grants it by transferring ownership to the engine
// account; the engine passes that account as the caller on every mint.
type Minter interface {
	Mint(caller, to [20]byte, amount *big.Int) error
}
