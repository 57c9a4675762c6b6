package rpc

import (
	"errors"
	"math/big"
	"net/http"
	"strings"

	"presale/native/sale"
	"presale/native/token"
	"presale/observability/metrics"
)

type receiptResult struct {
	ID            string `json:"id"`
	Buyer         string `json:"buyer"`
	Asset         string `json:"asset"`
	TokenAmount   string `json:"tokenAmount"`
	PaymentAmount string `json:"paymentAmount"`
	CreatedAt     int64  `json:"createdAt"`
}

func formatReceipt(r *sale.PurchaseReceipt) receiptResult {
	asset := sale.NativeAssetLabel
	if !r.Native {
		asset = formatAddress(r.Asset)
	}
	return receiptResult{
		ID:            r.ID,
		Buyer:         formatAddress(r.Buyer),
		Asset:         asset,
		TokenAmount:   r.TokenAmount.String(),
		PaymentAmount: r.PaymentAmount.String(),
		CreatedAt:     r.CreatedAt,
	}
}

func parseAmount(value string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	return amount, ok
}

func (s *Server) handleBuyTokens(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Buyer       string `json:"buyer"`
		Asset       string `json:"asset"`
		TokenAmount string `json:"tokenAmount"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {buyer, asset, tokenAmount}", nil)
		return true
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return true
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset address", err.Error())
		return true
	}
	amount, ok := parseAmount(params.TokenAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token amount", nil)
		return true
	}
	receipt, err := s.sale.BuyTokens(buyer, amount, asset)
	if err != nil {
		metrics.Sale().ObserveRejection(rejectionReason(err))
		writeEngineError(w, req.ID, err)
		return true
	}
	minted, _ := new(big.Float).SetInt(receipt.TokenAmount).Float64()
	metrics.Sale().ObservePurchase(params.Asset, minted)
	s.observeSupply()
	writeResult(w, req.ID, formatReceipt(receipt))
	return false
}

func (s *Server) handleBuyTokensNative(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Buyer       string `json:"buyer"`
		TokenAmount string `json:"tokenAmount"`
		Value       string `json:"value"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {buyer, tokenAmount, value}", nil)
		return true
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return true
	}
	amount, ok := parseAmount(params.TokenAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token amount", nil)
		return true
	}
	value, ok := parseAmount(params.Value)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid value", nil)
		return true
	}
	receipt, err := s.sale.BuyTokensNative(buyer, amount, value)
	if err != nil {
		metrics.Sale().ObserveRejection(rejectionReason(err))
		writeEngineError(w, req.ID, err)
		return true
	}
	minted, _ := new(big.Float).SetInt(receipt.TokenAmount).Float64()
	metrics.Sale().ObservePurchase(sale.NativeAssetLabel, minted)
	s.observeSupply()
	writeResult(w, req.ID, formatReceipt(receipt))
	return false
}

func (s *Server) handleSetRate(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Caller    string `json:"caller"`
		Asset     string `json:"asset"`
		PartsSell uint64 `json:"partsSell"`
		PartsMint uint64 `json:"partsMint"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller, asset, partsSell, partsMint}", nil)
		return true
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return true
	}
	if strings.TrimSpace(params.Asset) == sale.NativeAssetLabel {
		err = s.sale.SetNativeExchangeRate(caller, params.PartsSell, params.PartsMint)
	} else {
		var asset [20]byte
		asset, err = parseAddress(params.Asset)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset address", err.Error())
			return true
		}
		err = s.sale.SetPaymentTokenExchangeRate(caller, asset, params.PartsSell, params.PartsMint)
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleUnsetRate(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Caller string `json:"caller"`
		Asset  string `json:"asset"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller, asset}", nil)
		return true
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return true
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset address", err.Error())
		return true
	}
	if err := s.sale.UnsetPaymentTokenExchangeRate(caller, asset); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Caller string `json:"caller"`
		Asset  string `json:"asset"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller, asset}", nil)
		return true
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return true
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset address", err.Error())
		return true
	}
	amount, err := s.sale.Withdraw(caller, asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	metrics.Sale().ObserveWithdrawal(params.Asset)
	writeResult(w, req.ID, map[string]string{"amount": amount.String()})
	return false
}

func (s *Server) handleWithdrawNative(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Caller string `json:"caller"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller}", nil)
		return true
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return true
	}
	amount, err := s.sale.WithdrawNative(caller)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	metrics.Sale().ObserveWithdrawal(sale.NativeAssetLabel)
	writeResult(w, req.ID, map[string]string{"amount": amount.String()})
	return false
}

func (s *Server) handleSaleTransferOwnership(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Caller   string `json:"caller"`
		NewOwner string `json:"newOwner"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller, newOwner}", nil)
		return true
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return true
	}
	newOwner, err := parseAddress(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid newOwner address", err.Error())
		return true
	}
	if err := s.sale.TransferOwnership(caller, newOwner); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

type saleInfoResult struct {
	Owner         string `json:"owner"`
	EngineAccount string `json:"engineAccount"`
	Deadline      int64  `json:"deadline"`
	Phase         string `json:"phase"`
	NativeBalance string `json:"nativeBalance"`
	NativeRate    *struct {
		PartsSell uint64 `json:"partsSell"`
		PartsMint uint64 `json:"partsMint"`
	} `json:"nativeRate,omitempty"`
}

func (s *Server) handleSaleInfo(w http.ResponseWriter, req *RPCRequest) bool {
	owner, err := s.sale.Owner()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	deadline, err := s.sale.Deadline()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	phase, err := s.sale.PhaseNow()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	nativeBal, err := s.sale.NativeBalance()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	result := saleInfoResult{
		Owner:         formatAddress(owner),
		EngineAccount: formatAddress(s.sale.Account()),
		Deadline:      deadline,
		Phase:         string(phase),
		NativeBalance: nativeBal.String(),
	}
	if pair, err := s.sale.NativeExchangeRate(); err == nil && pair.Active() {
		result.NativeRate = &struct {
			PartsSell uint64 `json:"partsSell"`
			PartsMint uint64 `json:"partsMint"`
		}{pair.PartsSell, pair.PartsMint}
	}
	writeResult(w, req.ID, result)
	return false
}

func (s *Server) handleGetRate(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Asset string `json:"asset"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {asset}", nil)
		return true
	}
	var pair sale.RatePair
	var err error
	if strings.TrimSpace(params.Asset) == sale.NativeAssetLabel {
		pair, err = s.sale.NativeExchangeRate()
	} else {
		var asset [20]byte
		asset, err = parseAddress(params.Asset)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset address", err.Error())
			return true
		}
		pair, err = s.sale.ExchangeRate(asset)
	}
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, map[string]interface{}{
		"accepted":  pair.Active(),
		"partsSell": pair.PartsSell,
		"partsMint": pair.PartsMint,
	})
	return false
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		ID string `json:"id"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {id}", nil)
		return true
	}
	receipt, ok, err := s.sale.Receipts().Get(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, "receipt not found", params.ID)
		return true
	}
	writeResult(w, req.ID, formatReceipt(receipt))
	return false
}

func (s *Server) handleListReceipts(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Limit int `json:"limit"`
	}
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected at most {limit}", nil)
		return true
	}
	if len(req.Params) == 1 {
		if err := decodeParam(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid limit", err.Error())
			return true
		}
	}
	receipts, err := s.sale.Receipts().List(params.Limit)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	results := make([]receiptResult, 0, len(receipts))
	for _, receipt := range receipts {
		results = append(results, formatReceipt(receipt))
	}
	writeResult(w, req.ID, results)
	return false
}

func (s *Server) observeSupply() {
	supply, err := s.token.TotalSupply()
	if err != nil {
		return
	}
	value, _ := new(big.Float).SetInt(supply).Float64()
	metrics.Sale().SetTokenSupply(value)
}

// rejectionReason maps engine sentinels onto stable metric labels; wrapped
// errors resolve through errors.Is like the RPC error codes do.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, sale.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, sale.ErrSaleEnded):
		return "sale_ended"
	case errors.Is(err, sale.ErrAssetNotAccepted):
		return "asset_not_accepted"
	case errors.Is(err, sale.ErrBadNativeValue):
		return "bad_native_value"
	case errors.Is(err, sale.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, token.ErrMintingNotAllowed):
		return "minting_not_allowed"
	case errors.Is(err, token.ErrCapExceeded):
		return "cap_exceeded"
	default:
		return "other"
	}
}
