package sale

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	receiptPrefix   = []byte("sale/receipt/")
	receiptIndexKey = []byte("sale/receipt/index")
)

// PurchaseReceipt records a completed purchase for auditing. Native is set
// for native-currency purchases, in which case Asset is the zero array.
type PurchaseReceipt struct {
	ID            string
	Buyer         [20]byte
	Asset         [20]byte
	Native        bool
	TokenAmount   *big.Int
	PaymentAmount *big.Int
	CreatedAt     int64
}

// Copy returns a deep copy to avoid callers mutating shared pointers.
func (r *PurchaseReceipt) Copy() *PurchaseReceipt {
	if r == nil {
		return nil
	}
	clone := *r
	if r.TokenAmount != nil {
		clone.TokenAmount = new(big.Int).Set(r.TokenAmount)
	}
	if r.PaymentAmount != nil {
		clone.PaymentAmount = new(big.Int).Set(r.PaymentAmount)
	}
	return &clone
}

type storedReceipt struct {
	ID            string
	Buyer         [20]byte
	Asset         [20]byte
	Native        bool
	TokenAmount   *big.Int
	PaymentAmount *big.Int
	CreatedAt     uint64
}

// Ledger persists purchase receipts in the underlying key-value store.
type Ledger struct {
	store State
	nowFn func() int64
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store State) *Ledger {
	return &Ledger{
		store: store,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the wall clock, primarily for deterministic testing.
func (l *Ledger) SetNowFunc(now func() int64) {
	if l == nil || now == nil {
		return
	}
	l.nowFn = now
}

func receiptKey(id string) []byte {
	return []byte(fmt.Sprintf("%s%s", receiptPrefix, strings.TrimSpace(id)))
}

// Put stores the receipt, assigning a fresh identifier when absent, and
// appends it to the chronological index.
func (l *Ledger) Put(receipt *PurchaseReceipt) error {
	if l == nil {
		return fmt.Errorf("sale: receipt ledger not initialised")
	}
	if receipt == nil {
		return fmt.Errorf("sale: receipt must not be nil")
	}
	if strings.TrimSpace(receipt.ID) == "" {
		receipt.ID = uuid.NewString()
	}
	if receipt.CreatedAt == 0 {
		receipt.CreatedAt = l.nowFn()
	}
	stored := storedReceipt{
		ID:            receipt.ID,
		Buyer:         receipt.Buyer,
		Asset:         receipt.Asset,
		Native:        receipt.Native,
		TokenAmount:   receipt.TokenAmount,
		PaymentAmount: receipt.PaymentAmount,
		CreatedAt:     uint64(receipt.CreatedAt),
	}
	if stored.TokenAmount == nil {
		stored.TokenAmount = big.NewInt(0)
	}
	if stored.PaymentAmount == nil {
		stored.PaymentAmount = big.NewInt(0)
	}
	if err := l.store.KVPut(receiptKey(receipt.ID), &stored); err != nil {
		return err
	}
	return l.store.KVAppend(receiptIndexKey, []byte(receipt.ID))
}

// Get retrieves a receipt by identifier.
func (l *Ledger) Get(id string) (*PurchaseReceipt, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("sale: receipt ledger not initialised")
	}
	var stored storedReceipt
	ok, err := l.store.KVGet(receiptKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return fromStored(&stored), true, nil
}

// List returns up to limit receipts in insertion order; limit <= 0 returns
// everything.
func (l *Ledger) List(limit int) ([]*PurchaseReceipt, error) {
	if l == nil {
		return nil, fmt.Errorf("sale: receipt ledger not initialised")
	}
	var ids [][]byte
	if err := l.store.KVGetList(receiptIndexKey, &ids); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	receipts := make([]*PurchaseReceipt, 0, limit)
	for _, raw := range ids {
		if len(receipts) == limit {
			break
		}
		receipt, ok, err := l.Get(string(raw))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func fromStored(stored *storedReceipt) *PurchaseReceipt {
	receipt := &PurchaseReceipt{
		ID:            stored.ID,
		Buyer:         stored.Buyer,
		Asset:         stored.Asset,
		Native:        stored.Native,
		TokenAmount:   big.NewInt(0),
		PaymentAmount: big.NewInt(0),
		CreatedAt:     int64(stored.CreatedAt),
	}
	if stored.TokenAmount != nil {
		receipt.TokenAmount = new(big.Int).Set(stored.TokenAmount)
	}
	if stored.PaymentAmount != nil {
		receipt.PaymentAmount = new(big.Int).Set(stored.PaymentAmount)
	}
	return receipt
}
