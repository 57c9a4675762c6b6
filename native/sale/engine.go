package sale

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// SecondsPerDay converts the administrator-supplied sale duration.
const SecondsPerDay uint64 = 86400

var (
	saleMetaKey   = []byte("sale/meta")
	ratePrefix    = []byte("sale/rate/")
	nativeRateKey = []byte("sale/rate/native")
)

type storedSaleMeta struct {
	Owner        [20]byte
	SaleStart    uint64
	SaleDuration uint64
}

// Engine brokers purchases of the reward token against configured payment
// assets and native currency within the sale window, and releases collected
// funds to the administrator once the window closes. Every top-level call
// runs to completion under the engine lock; the purchase flow is
// all-or-nothing — a mint failure refunds the pulled payment before the
// error is surfaced.
type Engine struct {
	mu       sync.Mutex
	state    State
	minter   Minter
	payments TransferPrimitive
	native   NativeLedger
	ledger   *Ledger
	self     [20]byte
	nowFn    func() int64
}

// NewEngine binds the sale engine to its collaborators. self is the engine's
// own account: collected payment assets and native currency accumulate
// there, and it is the caller identity handed to the minter. On first use
// the sale window opens now and runs for durationDays; on later boots the
// persisted window wins and both owner and durationDays are ignored.
func NewEngine(state State, minter Minter, payments TransferPrimitive, native NativeLedger, self, owner [20]byte, durationDays uint64) (*Engine, error) {
	if state == nil {
		return nil, fmt.Errorf("sale: state not configured")
	}
	if minter == nil {
		return nil, fmt.Errorf("sale: minter not configured")
	}
	if payments == nil {
		return nil, fmt.Errorf("sale: transfer primitive not configured")
	}
	if native == nil {
		return nil, fmt.Errorf("sale: native ledger not configured")
	}
	if self == ([20]byte{}) {
		return nil, fmt.Errorf("sale: engine account not configured")
	}
	e := &Engine{
		state:    state,
		minter:   minter,
		payments: payments,
		native:   native,
		ledger:   NewLedger(state),
		self:     self,
		nowFn:    func() int64 { return time.Now().Unix() },
	}
	var meta storedSaleMeta
	ok, err := state.KVGet(saleMetaKey, &meta)
	if err != nil {
		return nil, err
	}
	if ok {
		return e, nil
	}
	if owner == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if durationDays == 0 {
		return nil, fmt.Errorf("sale: duration must be positive")
	}
	meta = storedSaleMeta{
		Owner:        owner,
		SaleStart:    uint64(e.now()),
		SaleDuration: durationDays * SecondsPerDay,
	}
	if err := state.KVPut(saleMetaKey, &meta); err != nil {
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
	if e.ledger != nil {
		e.ledger.SetNowFunc(now)
	}
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func rateKey(asset [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", ratePrefix, asset))
}

func (e *Engine) loadMeta() (*storedSaleMeta, error) {
	var meta storedSaleMeta
	ok, err := e.state.KVGet(saleMetaKey, &meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sale: engine not initialised")
	}
	return &meta, nil
}

// authorize rejects callers other than the current owner.
func authorize(meta *storedSaleMeta, caller [20]byte) error {
	if caller != meta.Owner {
		return ErrNotOwner
	}
	return nil
}

func (e *Engine) loadRate(key []byte) (RatePair, error) {
	var pair RatePair
	ok, err := e.state.KVGet(key, &pair)
	if err != nil {
		return RatePair{}, err
	}
	if !ok {
		return RatePair{}, nil
	}
	return pair, nil
}

// SetPaymentTokenExchangeRate configures (or replaces) the rate pair for a
// payment asset: partsSell units of the asset buy partsMint reward tokens.
func (e *Engine) SetPaymentTokenExchangeRate(caller, asset [20]byte, partsSell, partsMint uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return err
	}
	if err := authorize(meta, caller); err != nil {
		return err
	}
	if asset == ([20]byte{}) {
		return ErrInvalidPaymentToken
	}
	if partsSell == 0 || partsMint == 0 {
		return ErrInvalidExchangeRate
	}
	pair := RatePair{PartsSell: partsSell, PartsMint: partsMint}
	if err := e.state.KVPut(rateKey(asset), &pair); err != nil {
		return err
	}
	e.state.AppendEvent(rateSetEvent(asset, false, pair, e.now()))
	return nil
}

// SetNativeExchangeRate configures the rate pair for the chain-native asset.
func (e *Engine) SetNativeExchangeRate(caller [20]byte, partsSell, partsMint uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return err
	}
	if err := authorize(meta, caller); err != nil {
		return err
	}
	if partsSell == 0 || partsMint == 0 {
		return ErrInvalidExchangeRate
	}
	pair := RatePair{PartsSell: partsSell, PartsMint: partsMint}
	if err := e.state.KVPut(nativeRateKey, &pair); err != nil {
		return err
	}
	e.state.AppendEvent(rateSetEvent([20]byte{}, true, pair, e.now()))
	return nil
}

// UnsetPaymentTokenExchangeRate clears the rate pair for the asset. It is
// idempotent and succeeds even when no entry exists.
func (e *Engine) UnsetPaymentTokenExchangeRate(caller, asset [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return err
	}
	if err := authorize(meta, caller); err != nil {
		return err
	}
	if err := e.state.KVPut(rateKey(asset), &RatePair{}); err != nil {
		return err
	}
	e.state.AppendEvent(rateUnsetEvent(asset, e.now()))
	return nil
}

// BuyTokens purchases tokenAmount reward tokens against the configured
// payment asset. The guard order is part of the contract: InvalidAmount,
// then SaleEnded, then AssetNotAccepted, then the payment pull, then the
// mint. A mint failure refunds the pulled payment so neither effect
// survives alone.
func (e *Engine) BuyTokens(buyer [20]byte, tokenAmount *big.Int, asset [20]byte) (*PurchaseReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return nil, err
	}
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	if PhaseAt(now, deadline(meta)) != PhaseOpen {
		return nil, ErrSaleEnded
	}
	pair, err := e.loadRate(rateKey(asset))
	if err != nil {
		return nil, err
	}
	if asset == ([20]byte{}) || !pair.Active() {
		return nil, ErrAssetNotAccepted
	}
	cost := PaymentCost(tokenAmount, pair)
	if err := e.payments.TransferFrom(asset, buyer, e.self, cost); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.minter.Mint(e.self, buyer, tokenAmount); err != nil {
		if refundErr := e.payments.Transfer(asset, e.self, buyer, cost); refundErr != nil {
			return nil, fmt.Errorf("sale: mint failed (%v) and refund failed: %w", err, refundErr)
		}
		return nil, err
	}
	receipt := &PurchaseReceipt{
		Buyer:         buyer,
		Asset:         asset,
		TokenAmount:   new(big.Int).Set(tokenAmount),
		PaymentAmount: cost,
		CreatedAt:     now,
	}
	if err := e.ledger.Put(receipt); err != nil {
		return nil, err
	}
	e.state.AppendEvent(purchaseEvent(receipt))
	return receipt, nil
}

// BuyTokensNative purchases tokenAmount reward tokens with the chain-native
// asset. value is the native amount attached to the call; it must match the
// required payment exactly, otherwise the call fails with ErrBadNativeValue.
// On success the native funds are retained in the engine account.
func (e *Engine) BuyTokensNative(buyer [20]byte, tokenAmount, value *big.Int) (*PurchaseReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return nil, err
	}
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	if PhaseAt(now, deadline(meta)) != PhaseOpen {
		return nil, ErrSaleEnded
	}
	pair, err := e.loadRate(nativeRateKey)
	if err != nil {
		return nil, err
	}
	if !pair.Active() {
		return nil, ErrAssetNotAccepted
	}
	cost := PaymentCost(tokenAmount, pair)
	if value == nil || value.Cmp(cost) != 0 {
		return nil, ErrBadNativeValue
	}
	if err := e.native.NativeTransfer(buyer, e.self, value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.minter.Mint(e.self, buyer, tokenAmount); err != nil {
		if refundErr := e.native.NativeTransfer(e.self, buyer, value); refundErr != nil {
			return nil, fmt.Errorf("sale: mint failed (%v) and refund failed: %w", err, refundErr)
		}
		return nil, err
	}
	receipt := &PurchaseReceipt{
		Buyer:         buyer,
		Native:        true,
		TokenAmount:   new(big.Int).Set(tokenAmount),
		PaymentAmount: cost,
		CreatedAt:     now,
	}
	if err := e.ledger.Put(receipt); err != nil {
		return nil, err
	}
	e.state.AppendEvent(purchaseEvent(receipt))
	return receipt, nil
}

// Withdraw sweeps the engine's entire balance of the payment asset to the
// owner. Only allowed once the sale window has closed.
func (e *Engine) Withdraw(caller, asset [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return nil, err
	}
	if err := authorize(meta, caller); err != nil {
		return nil, err
	}
	now := e.now()
	if PhaseAt(now, deadline(meta)) == PhaseOpen {
		return nil, ErrSaleStillOngoing
	}
	balance, err := e.payments.BalanceOf(asset, e.self)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, fmt.Errorf("%w: nothing to withdraw", ErrTransferFailed)
	}
	if err := e.payments.Transfer(asset, e.self, meta.Owner, balance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.state.AppendEvent(withdrawalEvent(asset, false, meta.Owner, balance, now))
	return balance, nil
}

// WithdrawNative sweeps the engine's collected native balance to the owner.
func (e *Engine) WithdrawNative(caller [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return nil, err
	}
	if err := authorize(meta, caller); err != nil {
		return nil, err
	}
	now := e.now()
	if PhaseAt(now, deadline(meta)) == PhaseOpen {
		return nil, ErrSaleStillOngoing
	}
	balance, err := e.native.NativeBalance(e.self)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, fmt.Errorf("%w: nothing to withdraw", ErrTransferFailed)
	}
	if err := e.native.NativeTransfer(e.self, meta.Owner, balance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.state.AppendEvent(withdrawalEvent([20]byte{}, true, meta.Owner, balance, now))
	return balance, nil
}

// TransferOwnership hands sale administration to newOwner.
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
	if err := e.state.KVPut(saleMetaKey, meta); err != nil {
		return err
	}
	e.state.AppendEvent(ownershipEvent(previous, newOwner, e.now()))
	return nil
}

func deadline(meta *storedSaleMeta) int64 {
	return int64(meta.SaleStart + meta.SaleDuration)
}

// ExchangeRate returns the configured pair for the asset; a zero pair means
// the asset is not accepted.
func (e *Engine) ExchangeRate(asset [20]byte) (RatePair, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadRate(rateKey(asset))
}

// NativeExchangeRate returns the configured pair for the native asset.
func (e *Engine) NativeExchangeRate() (RatePair, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadRate(nativeRateKey)
}

// Deadline returns the instant at which the sale closes.
func (e *Engine) Deadline() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return 0, err
	}
	return deadline(meta), nil
}

// PhaseNow evaluates the current sale phase.
func (e *Engine) PhaseNow() (Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return "", err
	}
	return PhaseAt(e.now(), deadline(meta)), nil
}

// Owner returns the current sale administrator.
func (e *Engine) Owner() ([20]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta, err := e.loadMeta()
	if err != nil {
		return [20]byte{}, err
	}
	return meta.Owner, nil
}

// Account returns the engine's own fund-holding account.
func (e *Engine) Account() [20]byte {
	return e.self
}

// NativeBalance reports the native funds collected so far.
func (e *Engine) NativeBalance() (*big.Int, error) {
	return e.native.NativeBalance(e.self)
}

// Receipts exposes the purchase receipt ledger.
func (e *Engine) Receipts() *Ledger {
	return e.ledger
}
