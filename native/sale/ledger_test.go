package sale

import (
	"math/big"
	"testing"
)

func TestLedgerPutAssignsIdentifierAndTimestamp(t *testing.T) {
	st := newMockState()
	ledger := NewLedger(st)
	ledger.SetNowFunc(func() int64 { return 4_200 })

	receipt := &PurchaseReceipt{
		Buyer:         addr(2),
		Asset:         addr(9),
		TokenAmount:   big.NewInt(15),
		PaymentAmount: big.NewInt(10),
	}
	if err := ledger.Put(receipt); err != nil {
		t.Fatalf("put: %v", err)
	}
	if receipt.ID == "" {
		t.Fatalf("no identifier assigned")
	}
	if receipt.CreatedAt != 4_200 {
		t.Fatalf("created at = %d, want 4200", receipt.CreatedAt)
	}

	stored, ok, err := ledger.Get(receipt.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if stored.Buyer != receipt.Buyer || stored.Asset != receipt.Asset {
		t.Fatalf("stored receipt mismatch: %+v", stored)
	}
	if stored.TokenAmount.Int64() != 15 || stored.PaymentAmount.Int64() != 10 {
		t.Fatalf("stored amounts = %v/%v", stored.TokenAmount, stored.PaymentAmount)
	}
	if stored.Native {
		t.Fatalf("asset purchase flagged native")
	}
}

func TestLedgerGetMissing(t *testing.T) {
	ledger := NewLedger(newMockState())
	_, ok, err := ledger.Get("does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("found a receipt that was never stored")
	}
}

func TestLedgerListInsertionOrder(t *testing.T) {
	st := newMockState()
	ledger := NewLedger(st)
	ts := int64(100)
	ledger.SetNowFunc(func() int64 { ts++; return ts })

	for i := int64(1); i <= 5; i++ {
		receipt := &PurchaseReceipt{
			Buyer:       addr(2),
			Native:      true,
			TokenAmount: big.NewInt(i),
		}
		if err := ledger.Put(receipt); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	all, err := ledger.List(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("list len = %d, want 5", len(all))
	}
	for i, receipt := range all {
		if receipt.TokenAmount.Int64() != int64(i+1) {
			t.Fatalf("receipt %d out of order: amount %v", i, receipt.TokenAmount)
		}
	}

	limited, err := ledger.List(2)
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited len = %d, want 2", len(limited))
	}
	if limited[1].TokenAmount.Int64() != 2 {
		t.Fatalf("limited order wrong: %v", limited[1].TokenAmount)
	}
}

func TestPurchaseReceiptCopyIsDeep(t *testing.T) {
	receipt := &PurchaseReceipt{
		ID:            "r-1",
		TokenAmount:   big.NewInt(5),
		PaymentAmount: big.NewInt(3),
	}
	clone := receipt.Copy()
	clone.TokenAmount.SetInt64(99)
	if receipt.TokenAmount.Int64() != 5 {
		t.Fatalf("copy shares token amount pointer")
	}
}
