package rpc

import (
	"net/http"

	"presale/native/token"
)

type callerParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) decodeCallerParams(w http.ResponseWriter, req *RPCRequest) (caller, to [20]byte, amount string, ok bool) {
	var params callerParams
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller, to, amount}", nil)
		return
	}
	var err error
	caller, err = parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	to, err = parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", err.Error())
		return
	}
	return caller, to, params.Amount, true
}

type tokenInfoResult struct {
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	Decimals       uint8  `json:"decimals"`
	Cap            string `json:"cap"`
	TotalSupply    string `json:"totalSupply"`
	Owner          string `json:"owner"`
	MintingAllowed bool   `json:"mintingAllowed"`
	MintTimeLimit  uint64 `json:"mintTimeLimitSeconds"`
	DeployedAt     int64  `json:"deployedAt"`
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, req *RPCRequest) bool {
	cap, err := s.token.Cap()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	supply, err := s.token.TotalSupply()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	owner, err := s.token.Owner()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	allowed, err := s.token.MintingAllowed()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	limit, err := s.token.MintTimeLimitation()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	deployedAt, err := s.token.DeployedAt()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, tokenInfoResult{
		Name:           token.Name,
		Symbol:         token.Symbol,
		Decimals:       token.Decimals,
		Cap:            cap.String(),
		TotalSupply:    supply.String(),
		Owner:          formatAddress(owner),
		MintingAllowed: allowed,
		MintTimeLimit:  limit,
		DeployedAt:     deployedAt,
	})
	return false
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Address string `json:"address"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {address}", nil)
		return true
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return true
	}
	balance, err := s.token.BalanceOf(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
	return false
}

func (s *Server) handleTokenTotalSupply(w http.ResponseWriter, req *RPCRequest) bool {
	supply, err := s.token.TotalSupply()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, map[string]string{"totalSupply": supply.String()})
	return false
}

func (s *Server) handleTokenAllowance(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {owner, spender}", nil)
		return true
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return true
	}
	spender, err := parseAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", err.Error())
		return true
	}
	allowance, err := s.token.Allowance(owner, spender)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, map[string]string{"allowance": allowance.String()})
	return false
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, req *RPCRequest) bool {
	caller, to, rawAmount, ok := s.decodeCallerParams(w, req)
	if !ok {
		return true
	}
	amount, ok := parseAmount(rawAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", nil)
		return true
	}
	if err := s.token.Transfer(caller, to, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Caller  string `json:"caller"`
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller, spender, amount}", nil)
		return true
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return true
	}
	spender, err := parseAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", err.Error())
		return true
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", nil)
		return true
	}
	if err := s.token.Approve(caller, spender, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleTokenTransferFrom(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Caller string `json:"caller"`
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller, from, to, amount}", nil)
		return true
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return true
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from address", err.Error())
		return true
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", err.Error())
		return true
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", nil)
		return true
	}
	if err := s.token.TransferFrom(caller, from, to, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleTokenMint(w http.ResponseWriter, req *RPCRequest) bool {
	caller, to, rawAmount, ok := s.decodeCallerParams(w, req)
	if !ok {
		return true
	}
	amount, ok := parseAmount(rawAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", nil)
		return true
	}
	if err := s.token.Mint(caller, to, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	s.observeSupply()
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleSetMintingAllowed(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Caller  string `json:"caller"`
		Allowed bool   `json:"allowed"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller, allowed}", nil)
		return true
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return true
	}
	if err := s.token.SetMintingAllowed(caller, params.Allowed); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleSetMintTimeLimitation(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Caller  string `json:"caller"`
		Minutes uint64 `json:"minutes"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {caller, minutes}", nil)
		return true
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return true
	}
	if err := s.token.SetMintTimeLimitation(caller, params.Minutes); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleTokenTransferOwnership(w http.ResponseWriter, req *RPCRequest) bool {
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
	if err := s.token.TransferOwnership(caller, newOwner); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleAssetBalanceOf(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Asset   string `json:"asset"`
		Address string `json:"address"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {asset, address}", nil)
		return true
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset address", err.Error())
		return true
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return true
	}
	balance, err := s.ledger.BalanceOf(asset, addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
	return false
}

// handleAssetApprove grants the sale engine (or any spender) an allowance on
// a payment asset. Buyers call this before sale_buyTokens.
func (s *Server) handleAssetApprove(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
		Asset   string `json:"asset"`
		Amount  string `json:"amount"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {owner, spender, asset, amount}", nil)
		return true
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return true
	}
	spender, err := parseAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", err.Error())
		return true
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid asset address", err.Error())
		return true
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", nil)
		return true
	}
	if err := s.ledger.Approve(asset, owner, spender, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, true)
	return false
}

func (s *Server) handleNativeBalanceOf(w http.ResponseWriter, req *RPCRequest) bool {
	var params struct {
		Address string `json:"address"`
	}
	if len(req.Params) != 1 || decodeParam(req.Params[0], &params) != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected {address}", nil)
		return true
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return true
	}
	balance, err := s.ledger.NativeBalance(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return true
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
	return false
}
