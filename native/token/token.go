package token

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"presale/core/types"
)

// Token metadata. Decimals matches the nine base-unit places the reward
// token has always carried.
const (
	Name     = "Reward Token"
	Symbol   = "RWD"
	Decimals = 9
)

// DefaultMintTimeLimit is the number of seconds after deployment during
// which minting stays open unless the administrator shortens or extends it.
const DefaultMintTimeLimit uint64 = 5256000

// State describes the minimal functionality the token engine needs from the
// surrounding state implementation.
type State interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	AppendEvent(evt *types.Event)
}

var (
	metaKey       = []byte("token/meta")
	supplyKey     = []byte("token/supply")
	balancePrefix = []byte("token/balance/")
	allowancePref = []byte("token/allowance/")
)

type storedMeta struct {
	Owner          [20]byte
	MintingAllowed bool
	MintTimeLimit  uint64
	DeployedAt     uint64
	Cap            *big.Int
}

// Engine maintains the capped reward-token ledger and gates minting behind
// the authorization window. All mutating calls run to completion under the
// engine lock; a failed guard leaves state untouched.
type Engine struct {
	mu    sync.Mutex
	state State
	nowFn func() int64
}

// NewEngine binds the engine to its state backend. On first use the ledger
// is initialised with the supplied owner and immutable cap; on subsequent
// boots the persisted metadata wins and both arguments are ignored.
func NewEngine(state State, owner [20]byte, cap *big.Int) (*Engine, error) {
	if state == nil {
		return nil, fmt.Errorf("token: state not configured")
	}
	e := &Engine{
		state: state,
		nowFn: func() int64 { return time.Now().Unix() },
	}
	var meta storedMeta
	ok, err := state.KVGet(metaKey, &meta)
	if err != nil {
		return nil, err
	}
	if ok {
		return e, nil
	}
	if owner == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if cap == nil || cap.Sign() <= 0 {
		return nil, fmt.Errorf("token: cap must be positive")
	}
	now := e.now()
	meta = storedMeta{
		Owner:          owner,
		MintingAllowed: true,
		MintTimeLimit:  DefaultMintTimeLimit,
		DeployedAt:     uint64(now),
		Cap:            new(big.Int).Set(cap),
	}
	if err := state.KVPut(metaKey, &meta); err != nil {
		return nil, err
	}
	return e, nil
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func balanceKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", balancePrefix, addr))
}

func allowanceKey(owner, spender [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", allowancePref, owner, spender))
}

func (e *Engine) loadMeta() (*storedMeta, error) {
	var meta storedMeta
	ok, err := e.state.KVGet(metaKey, &meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("token: ledger not initialised")
	}
	return &meta, nil
}

func (e *Engine) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := e.state.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// authorize rejects callers other than the current owner.
func authorize(meta *storedMeta, caller [20]byte) error {
	if caller != meta.Owner {
		return ErrNotOwner
	}
	return nil
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Mint credits amount to the target account. The caller must hold the
// minting authority, the target must not be the zero sentinel, the mint
// window must still be open, and the cap must hold. Guard order is part of
// the contract; callers assert on the specific rejection.
func (e *Engine) Mint(caller, to [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return err
	}
	if err := authorize(meta, caller); err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := positive(amount); err != nil {
		return err
	}
	now := e.now()
	if !meta.MintingAllowed || uint64(now) >= meta.DeployedAt+meta.MintTimeLimit {
		return ErrMintingNotAllowed
	}
	supply, err := e.loadAmount(supplyKey)
	if err != nil {
		return err
	}
	newSupply := new(big.Int).Add(supply, amount)
	if newSupply.Cmp(meta.Cap) > 0 {
		return ErrCapExceeded
	}
	balance, err := e.loadAmount(balanceKey(to))
	if err != nil {
		return err
	}
	if err := e.state.KVPut(balanceKey(to), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	if err := e.state.KVPut(supplyKey, newSupply); err != nil {
		return err
	}
	e.state.AppendEvent(mintedEvent(to, amount, newSupply, now))
	return nil
}

// SetMintingAllowed toggles the administrator switch for minting.
func (e *Engine) SetMintingAllowed(caller [20]byte, allowed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return err
	}
	if err := authorize(meta, caller); err != nil {
		return err
	}
	meta.MintingAllowed = allowed
	if err := e.state.KVPut(metaKey, meta); err != nil {
		return err
	}
	e.state.AppendEvent(mintingAllowedEvent(allowed, e.now()))
	return nil
}

// SetMintTimeLimitation updates the mint window. The input unit is minutes;
// the stored unit is seconds. Downstream consumers read seconds.
func (e *Engine) SetMintTimeLimitation(caller [20]byte, minutes uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return err
	}
	if err := authorize(meta, caller); err != nil {
		return err
	}
	meta.MintTimeLimit = minutes * 60
	if err := e.state.KVPut(metaKey, meta); err != nil {
		return err
	}
	e.state.AppendEvent(mintLimitEvent(meta.MintTimeLimit, e.now()))
	return nil
}

// TransferOwnership hands the minting authority to newOwner. Granting it to
// the sale engine's account is the wiring step that lets purchases mint.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return err
	}
	if err := authorize(meta, caller); err != nil {
		return err
	}
	if newOwner == ([20]byte{}) {
		return ErrZeroAddress
	}
	previous := meta.Owner
	meta.Owner = newOwner
	if err := e.state.KVPut(metaKey, meta); err != nil {
		return err
	}
	e.state.AppendEvent(ownershipEvent(previous, newOwner, e.now()))
	return nil
}

// Transfer moves tokens from the caller to another account.
func (e *Engine) Transfer(caller, to [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := positive(amount); err != nil {
		return err
	}
	if err := e.move(caller, to, amount); err != nil {
		return err
	}
	e.state.AppendEvent(transferEvent(caller, to, amount, e.now()))
	return nil
}

// Approve sets the allowance the caller grants to spender.
func (e *Engine) Approve(caller, spender [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if spender == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.state.KVPut(allowanceKey(caller, spender), amount); err != nil {
		return err
	}
	e.state.AppendEvent(approvalEvent(caller, spender, amount, e.now()))
	return nil
}

// TransferFrom moves tokens using the allowance from granted to the caller.
func (e *Engine) TransferFrom(caller, from, to [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := positive(amount); err != nil {
		return err
	}
	allowance, err := e.loadAmount(allowanceKey(from, caller))
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := e.move(from, to, amount); err != nil {
		return err
	}
	if err := e.state.KVPut(allowanceKey(from, caller), new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	e.state.AppendEvent(transferEvent(from, to, amount, e.now()))
	return nil
}

func (e *Engine) move(from, to [20]byte, amount *big.Int) error {
	fromBal, err := e.loadAmount(balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := e.loadAmount(balanceKey(to))
	if err != nil {
		return err
	}
	if err := e.state.KVPut(balanceKey(from), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return e.state.KVPut(balanceKey(to), new(big.Int).Add(toBal, amount))
}

// BalanceOf returns the account balance.
func (e *Engine) BalanceOf(addr [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadAmount(balanceKey(addr))
}

// Allowance returns the amount spender may move out of owner's balance.
func (e *Engine) Allowance(owner, spender [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadAmount(allowanceKey(owner, spender))
}

// TotalSupply returns the minted supply.
func (e *Engine) TotalSupply() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadAmount(supplyKey)
}

// Cap returns the immutable supply cap.
func (e *Engine) Cap() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(meta.Cap), nil
}

// Owner returns the current minting authority.
func (e *Engine) Owner() ([20]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return [20]byte{}, err
	}
	return meta.Owner, nil
}

// MintingAllowed reports the administrator toggle.
func (e *Engine) MintingAllowed() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return false, err
	}
	return meta.MintingAllowed, nil
}

// MintTimeLimitation returns the mint window duration in seconds.
func (e *Engine) MintTimeLimitation() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return 0, err
	}
	return meta.MintTimeLimit, nil
}

// DeployedAt returns the ledger's deployment timestamp.
func (e *Engine) DeployedAt() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return 0, err
	}
	return int64(meta.DeployedAt), nil
}
