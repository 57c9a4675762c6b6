package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"presale/core/types"
)

type mockState struct {
	data   map[string][]byte
	events []types.Event
}

func newMockState() *mockState {
	return &mockState{data: make(map[string][]byte)}
}

func (m *mockState) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := m.data[string(key)]
	if !ok {
		return false, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockState) KVPut(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.data[string(key)] = raw
	return nil
}

func (m *mockState) AppendEvent(evt *types.Event) {
	if evt == nil {
		return
	}
	m.events = append(m.events, *evt)
}

func (m *mockState) lastEvent() *types.Event {
	if len(m.events) == 0 {
		return nil
	}
	return &m.events[len(m.events)-1]
}

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

// newTestEngine pins the mock clock to the deployment stamp the constructor
// persisted, so window assertions can derive instants from DeployedAt.
func newTestEngine(t *testing.T, owner [20]byte, cap int64) (*Engine, *mockState) {
	t.Helper()
	st := newMockState()
	e, err := NewEngine(st, owner, big.NewInt(cap))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	deployedAt, err := e.DeployedAt()
	if err != nil {
		t.Fatalf("deployed at: %v", err)
	}
	e.SetNowFunc(func() int64 { return deployedAt })
	return e, st
}

func TestMintHappyPath(t *testing.T) {
	owner, holder := addr(1), addr(2)
	e, st := newTestEngine(t, owner, 10_000_000)

	if err := e.Mint(owner, holder, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bal, err := e.BalanceOf(holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Int64() != 10 {
		t.Fatalf("balance = %v, want 10", bal)
	}
	supply, err := e.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Int64() != 10 {
		t.Fatalf("supply = %v, want 10", supply)
	}
	evt := st.lastEvent()
	if evt == nil || evt.Type != TypeMinted {
		t.Fatalf("expected %s event, got %+v", TypeMinted, evt)
	}
}

func TestMintGuards(t *testing.T) {
	owner, holder, stranger := addr(1), addr(2), addr(3)
	e, _ := newTestEngine(t, owner, 10_000_000)

	if err := e.Mint(stranger, holder, big.NewInt(10)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("stranger mint: got %v, want ErrNotOwner", err)
	}
	if err := e.Mint(owner, [20]byte{}, big.NewInt(10)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero target: got %v, want ErrZeroAddress", err)
	}
	if err := e.Mint(owner, holder, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v, want ErrInvalidAmount", err)
	}
}

func TestMintCapBoundary(t *testing.T) {
	owner, holder := addr(1), addr(2)
	e, _ := newTestEngine(t, owner, 10_000_000)

	if err := e.Mint(owner, holder, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("mint to cap: %v", err)
	}
	err := e.Mint(owner, holder, big.NewInt(10))
	if !errors.Is(err, ErrCapExceeded) {
		t.Fatalf("mint past cap: got %v, want ErrCapExceeded", err)
	}
	supply, _ := e.TotalSupply()
	if supply.Int64() != 10_000_000 {
		t.Fatalf("supply changed on failed mint: %v", supply)
	}
}

func TestMintRejectedWhenCapWouldBeExceeded(t *testing.T) {
	owner, holder := addr(1), addr(2)
	e, _ := newTestEngine(t, owner, 100)

	if err := e.Mint(owner, holder, big.NewInt(101)); !errors.Is(err, ErrCapExceeded) {
		t.Fatalf("got %v, want ErrCapExceeded", err)
	}
	supply, _ := e.TotalSupply()
	if supply.Sign() != 0 {
		t.Fatalf("supply = %v, want 0", supply)
	}
}

func TestMintWindowElapsed(t *testing.T) {
	owner, holder := addr(1), addr(2)
	e, _ := newTestEngine(t, owner, 10_000_000)

	deployedAt, err := e.DeployedAt()
	if err != nil {
		t.Fatalf("deployed at: %v", err)
	}

	// Just inside the window.
	e.SetNowFunc(func() int64 { return deployedAt + int64(DefaultMintTimeLimit) - 1 })
	if err := e.Mint(owner, holder, big.NewInt(1)); err != nil {
		t.Fatalf("mint inside window: %v", err)
	}

	// At the boundary the window is closed regardless of cap headroom.
	e.SetNowFunc(func() int64 { return deployedAt + int64(DefaultMintTimeLimit) })
	if err := e.Mint(owner, holder, big.NewInt(1)); !errors.Is(err, ErrMintingNotAllowed) {
		t.Fatalf("mint at deadline: got %v, want ErrMintingNotAllowed", err)
	}
}

func TestMintDisabledByAdministrator(t *testing.T) {
	owner, holder := addr(1), addr(2)
	e, _ := newTestEngine(t, owner, 10_000_000)

	if err := e.SetMintingAllowed(owner, false); err != nil {
		t.Fatalf("disable minting: %v", err)
	}
	if err := e.Mint(owner, holder, big.NewInt(1)); !errors.Is(err, ErrMintingNotAllowed) {
		t.Fatalf("got %v, want ErrMintingNotAllowed", err)
	}
	if err := e.SetMintingAllowed(owner, true); err != nil {
		t.Fatalf("re-enable minting: %v", err)
	}
	if err := e.Mint(owner, holder, big.NewInt(1)); err != nil {
		t.Fatalf("mint after re-enable: %v", err)
	}
}

func TestSetMintTimeLimitationStoresSeconds(t *testing.T) {
	owner := addr(1)
	e, _ := newTestEngine(t, owner, 10_000_000)

	limit, err := e.MintTimeLimitation()
	if err != nil {
		t.Fatalf("limit: %v", err)
	}
	if limit != DefaultMintTimeLimit {
		t.Fatalf("default limit = %d, want %d", limit, DefaultMintTimeLimit)
	}

	if err := e.SetMintTimeLimitation(owner, 10); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	limit, _ = e.MintTimeLimitation()
	if limit != 600 {
		t.Fatalf("limit = %d, want 600", limit)
	}

	// Setting the window to zero closes minting immediately.
	if err := e.SetMintTimeLimitation(owner, 0); err != nil {
		t.Fatalf("zero limit: %v", err)
	}
	if err := e.Mint(owner, addr(2), big.NewInt(1)); !errors.Is(err, ErrMintingNotAllowed) {
		t.Fatalf("got %v, want ErrMintingNotAllowed", err)
	}

	if err := e.SetMintTimeLimitation(addr(9), 10); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("stranger setter: got %v, want ErrNotOwner", err)
	}
}

func TestTransferOwnershipGrantsMinting(t *testing.T) {
	owner, engine, holder := addr(1), addr(7), addr(2)
	e, _ := newTestEngine(t, owner, 10_000_000)

	if err := e.TransferOwnership(owner, engine); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if err := e.Mint(owner, holder, big.NewInt(1)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("old owner mint: got %v, want ErrNotOwner", err)
	}
	if err := e.Mint(engine, holder, big.NewInt(1)); err != nil {
		t.Fatalf("new owner mint: %v", err)
	}
	if err := e.TransferOwnership(owner, holder); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("old owner re-transfer: got %v, want ErrNotOwner", err)
	}
	if err := e.TransferOwnership(engine, [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero new owner: got %v, want ErrZeroAddress", err)
	}
}

func TestTransferAndAllowances(t *testing.T) {
	owner, alice, bob, carol := addr(1), addr(2), addr(3), addr(4)
	e, _ := newTestEngine(t, owner, 10_000_000)

	if err := e.Mint(owner, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := e.Transfer(alice, bob, big.NewInt(150)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraft: got %v, want ErrInsufficientBalance", err)
	}
	if err := e.Transfer(alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if err := e.TransferFrom(carol, alice, carol, big.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("no allowance: got %v, want ErrInsufficientAllowance", err)
	}
	if err := e.Approve(alice, carol, big.NewInt(25)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := e.TransferFrom(carol, alice, carol, big.NewInt(10)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	remaining, _ := e.Allowance(alice, carol)
	if remaining.Int64() != 15 {
		t.Fatalf("allowance = %v, want 15", remaining)
	}

	aliceBal, _ := e.BalanceOf(alice)
	bobBal, _ := e.BalanceOf(bob)
	carolBal, _ := e.BalanceOf(carol)
	supply, _ := e.TotalSupply()
	sum := new(big.Int).Add(aliceBal, new(big.Int).Add(bobBal, carolBal))
	if sum.Cmp(supply) != 0 {
		t.Fatalf("sum of balances %v != supply %v", sum, supply)
	}
}

func TestEnginePersistsAcrossRestart(t *testing.T) {
	owner, holder := addr(1), addr(2)
	st := newMockState()
	e, err := NewEngine(st, owner, big.NewInt(500))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Mint(owner, holder, big.NewInt(123)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Second boot against the same state; constructor args are ignored.
	e2, err := NewEngine(st, addr(9), big.NewInt(1))
	if err != nil {
		t.Fatalf("reopen engine: %v", err)
	}
	supply, err := e2.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Int64() != 123 {
		t.Fatalf("supply = %v, want 123", supply)
	}
	cap, _ := e2.Cap()
	if cap.Int64() != 500 {
		t.Fatalf("cap = %v, want 500", cap)
	}
	got, _ := e2.Owner()
	if got != owner {
		t.Fatalf("owner = %x, want %x", got, owner)
	}
}
