package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"presale/core/types"
	"presale/storage"
)

const maxBufferedEvents = 1024

var (
	// ErrInsufficientBalance marks transfers that exceed the sender's funds.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrInsufficientAllowance marks pulls that exceed the approved amount.
	ErrInsufficientAllowance = errors.New("state: insufficient allowance")
)

var (
	nativeBalancePrefix = []byte("native/balance/")
	assetBalancePrefix  = []byte("asset/balance/")
	assetAllowancePref  = []byte("asset/allowance/")
)

// Manager provides typed access to the node's key-value state. Records are
// RLP encoded before hitting the underlying database. It also owns the
// native-currency ledger and the payment-asset ledgers the sale engine pulls
// funds through, and buffers the events emitted during state transitions.
type Manager struct {
	mu sync.Mutex
	db storage.Database

	evMu   sync.Mutex
	events []types.Event
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager not initialised")
	}
	ok, err := m.db.Has(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	raw, err := m.db.Get(key)
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value with RLP and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

// KVAppend appends an opaque entry to the list stored under key.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list [][]byte
	ok, err := m.KVGet(key, &list)
	if err != nil {
		return err
	}
	if !ok {
		list = [][]byte{}
	}
	list = append(list, value)
	return m.KVPut(key, list)
}

// KVGetList loads the list stored under key into out. Missing keys yield an
// empty list rather than an error.
func (m *Manager) KVGetList(key []byte, out *[][]byte) error {
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		*out = [][]byte{}
	}
	return nil
}

// AppendEvent records an event emitted during a state transition. The buffer
// is bounded; the oldest entries are dropped once it fills up.
func (m *Manager) AppendEvent(evt *types.Event) {
	if m == nil || evt == nil {
		return
	}
	attrs := make(map[string]string, len(evt.Attributes))
	for k, v := range evt.Attributes {
		attrs[k] = v
	}
	m.evMu.Lock()
	defer m.evMu.Unlock()
	m.events = append(m.events, types.Event{Type: evt.Type, Attributes: attrs})
	if len(m.events) > maxBufferedEvents {
		m.events = m.events[len(m.events)-maxBufferedEvents:]
	}
}

// Events returns a copy of the buffered events, oldest first.
func (m *Manager) Events() []types.Event {
	m.evMu.Lock()
	defer m.evMu.Unlock()
	out := make([]types.Event, len(m.events))
	copy(out, m.events)
	return out
}

func nativeBalanceKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", nativeBalancePrefix, addr))
}

func assetBalanceKey(asset, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", assetBalancePrefix, asset, addr))
}

func assetAllowanceKey(asset, owner, spender [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x/%x/%x", assetAllowancePref, asset, owner, spender))
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// NativeBalance returns the native-currency balance of the account.
func (m *Manager) NativeBalance(addr [20]byte) (*big.Int, error) {
	return m.loadAmount(nativeBalanceKey(addr))
}

// SetNativeBalance overwrites the native balance of the account. Used for
// genesis seeding only; regular flows go through NativeTransfer.
func (m *Manager) SetNativeBalance(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: native balance must be non-negative")
	}
	return m.KVPut(nativeBalanceKey(addr), amount)
}

// NativeTransfer moves native currency between two accounts.
func (m *Manager) NativeTransfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fromBal, err := m.loadAmount(nativeBalanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := m.loadAmount(nativeBalanceKey(to))
	if err != nil {
		return err
	}
	if err := m.KVPut(nativeBalanceKey(from), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.KVPut(nativeBalanceKey(to), new(big.Int).Add(toBal, amount))
}

// BalanceOf returns the account's balance of the given payment asset.
func (m *Manager) BalanceOf(asset, account [20]byte) (*big.Int, error) {
	return m.loadAmount(assetBalanceKey(asset, account))
}

// SetAssetBalance overwrites an asset balance. Genesis seeding only.
func (m *Manager) SetAssetBalance(asset, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: asset balance must be non-negative")
	}
	return m.KVPut(assetBalanceKey(asset, addr), amount)
}

// Allowance returns the amount spender may pull from owner for the asset.
func (m *Manager) Allowance(asset, owner, spender [20]byte) (*big.Int, error) {
	return m.loadAmount(assetAllowanceKey(asset, owner, spender))
}

// Approve sets the allowance owner grants spender for the asset.
func (m *Manager) Approve(asset, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: allowance must be non-negative")
	}
	return m.KVPut(assetAllowanceKey(asset, owner, spender), amount)
}

// Transfer moves asset funds out of the from account without touching
// allowances. Callers are expected to pass their own account as from; the
// sale engine uses it to sweep and refund its collected balances.
func (m *Manager) Transfer(asset, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveAsset(asset, from, to, amount)
}

// TransferFrom pulls asset funds from the from account into to, consuming
// the allowance from granted to the recipient. This mirrors conventional
// fungible-token pull semantics where the recipient acts as the spender.
func (m *Manager) TransferFrom(asset, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	allowance, err := m.loadAmount(assetAllowanceKey(asset, from, to))
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := m.moveAsset(asset, from, to, amount); err != nil {
		return err
	}
	return m.KVPut(assetAllowanceKey(asset, from, to), new(big.Int).Sub(allowance, amount))
}

func (m *Manager) moveAsset(asset, from, to [20]byte, amount *big.Int) error {
	fromBal, err := m.loadAmount(assetBalanceKey(asset, from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := m.loadAmount(assetBalanceKey(asset, to))
	if err != nil {
		return err
	}
	if err := m.KVPut(assetBalanceKey(asset, from), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.KVPut(assetBalanceKey(asset, to), new(big.Int).Add(toBal, amount))
}
