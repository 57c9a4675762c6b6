package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"presale/core/state"
	"presale/crypto"
	"presale/native/sale"
	"presale/native/token"
	"presale/storage"
)

type testEnv struct {
	srv     *httptest.Server
	manager *state.Manager
	token   *token.Engine
	sale    *sale.Engine
	owner   crypto.Address
	buyer   crypto.Address
	asset   crypto.Address
	self    [20]byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(AuthTokenEnv, "secret-token")

	manager := state.NewManager(storage.NewMemDB())

	raw := func(b byte) []byte {
		buf := make([]byte, 20)
		buf[19] = b
		return buf
	}
	owner := crypto.NewAddress(raw(1))
	buyer := crypto.NewAddress(raw(2))
	asset := crypto.NewAddress(raw(9))
	self := crypto.DeriveModuleAccount("sale")

	tok, err := token.NewEngine(manager, owner.Raw(), big.NewInt(10_000_000))
	require.NoError(t, err)
	saleEngine, err := sale.NewEngine(manager, tok, manager, manager, self, owner.Raw(), 60)
	require.NoError(t, err)
	require.NoError(t, tok.TransferOwnership(owner.Raw(), self))

	server := NewServer(tok, saleEngine, manager, nil)
	ts := httptest.NewServer(http.HandlerFunc(server.handle))
	t.Cleanup(ts.Close)

	return &testEnv{
		srv:     ts,
		manager: manager,
		token:   tok,
		sale:    saleEngine,
		owner:   owner,
		buyer:   buyer,
		asset:   asset,
		self:    self,
	}
}

func (e *testEnv) call(t *testing.T, bearer, method string, params ...interface{}) *RPCResponse {
	t.Helper()
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(t, err)
		rawParams = append(rawParams, encoded)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  rawParams,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.srv.URL, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := &RPCResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(decoded))
	return decoded
}

func resultInto(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected RPC error: %+v", resp.Error)
	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(encoded, out))
}

func TestBuyFlowOverRPC(t *testing.T) {
	env := newTestEnv(t)

	// Seed the buyer with payment-asset funds.
	require.NoError(t, env.manager.SetAssetBalance(env.asset.Raw(), env.buyer.Raw(), big.NewInt(1_000)))

	resp := env.call(t, "secret-token", "sale_setRate", map[string]interface{}{
		"caller": env.owner.String(), "asset": env.asset.String(), "partsSell": 2, "partsMint": 3,
	})
	require.Nil(t, resp.Error)

	resp = env.call(t, "", "asset_approve", map[string]interface{}{
		"owner":   env.buyer.String(),
		"spender": crypto.NewAddress(env.self[:]).String(),
		"asset":   env.asset.String(),
		"amount":  "1000",
	})
	require.Nil(t, resp.Error)

	resp = env.call(t, "", "sale_buyTokens", map[string]interface{}{
		"buyer": env.buyer.String(), "asset": env.asset.String(), "tokenAmount": "15",
	})
	var receipt receiptResult
	resultInto(t, resp, &receipt)
	require.NotEmpty(t, receipt.ID)
	require.Equal(t, "15", receipt.TokenAmount)
	require.Equal(t, "10", receipt.PaymentAmount)

	resp = env.call(t, "", "token_balanceOf", map[string]interface{}{"address": env.buyer.String()})
	var balance struct {
		Balance string `json:"balance"`
	}
	resultInto(t, resp, &balance)
	require.Equal(t, "15", balance.Balance)

	resp = env.call(t, "", "sale_getReceipt", map[string]interface{}{"id": receipt.ID})
	var fetched receiptResult
	resultInto(t, resp, &fetched)
	require.Equal(t, receipt.ID, fetched.ID)

	resp = env.call(t, "", "sale_listReceipts")
	var receipts []receiptResult
	resultInto(t, resp, &receipts)
	require.Len(t, receipts, 1)
}

func TestNativeBuyFlowOverRPC(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.manager.SetNativeBalance(env.buyer.Raw(), big.NewInt(500)))

	resp := env.call(t, "secret-token", "sale_setRate", map[string]interface{}{
		"caller": env.owner.String(), "asset": "native", "partsSell": 2, "partsMint": 3,
	})
	require.Nil(t, resp.Error)

	// Value must match the cost exactly.
	resp = env.call(t, "", "sale_buyTokensNative", map[string]interface{}{
		"buyer": env.buyer.String(), "tokenAmount": "15", "value": "11",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = env.call(t, "", "sale_buyTokensNative", map[string]interface{}{
		"buyer": env.buyer.String(), "tokenAmount": "15", "value": "10",
	})
	var receipt receiptResult
	resultInto(t, resp, &receipt)
	require.Equal(t, "native", receipt.Asset)

	resp = env.call(t, "", "sale_info")
	var info saleInfoResult
	resultInto(t, resp, &info)
	require.Equal(t, "10", info.NativeBalance)
	require.Equal(t, "open", info.Phase)
	require.Equal(t, env.owner.String(), info.Owner)
	require.NotNil(t, info.NativeRate)
}

func TestPrivilegedMethodsRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)

	params := map[string]interface{}{
		"caller": env.owner.String(), "asset": env.asset.String(), "partsSell": 1, "partsMint": 1,
	}

	resp := env.call(t, "", "sale_setRate", params)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = env.call(t, "wrong-token", "sale_setRate", params)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = env.call(t, "secret-token", "sale_setRate", params)
	require.Nil(t, resp.Error)
}

func TestOwnerGuardSurfacesAsUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	resp := env.call(t, "secret-token", "sale_setRate", map[string]interface{}{
		"caller": env.buyer.String(), "asset": env.asset.String(), "partsSell": 1, "partsMint": 1,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.call(t, "", "sale_unknownMethod")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestMalformedRequestBody(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Post(env.srv.URL, "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := &RPCResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(decoded))
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeParseError, decoded.Error.Code)
}

func TestRejectionReasonLabels(t *testing.T) {
	require.Equal(t, "sale_ended", rejectionReason(sale.ErrSaleEnded))
	require.Equal(t, "asset_not_accepted", rejectionReason(sale.ErrAssetNotAccepted))
	// Wrapped sentinels resolve to the same stable label.
	require.Equal(t, "transfer_failed", rejectionReason(fmt.Errorf("%w: pull declined", sale.ErrTransferFailed)))
	require.Equal(t, "cap_exceeded", rejectionReason(fmt.Errorf("wrap: %w", token.ErrCapExceeded)))
	require.Equal(t, "other", rejectionReason(errors.New("backend unavailable")))
}

func TestTokenInfo(t *testing.T) {
	env := newTestEnv(t)
	resp := env.call(t, "", "token_info")
	var info tokenInfoResult
	resultInto(t, resp, &info)
	require.Equal(t, "Reward Token", info.Name)
	require.Equal(t, "RWD", info.Symbol)
	require.Equal(t, uint8(9), info.Decimals)
	require.Equal(t, "10000000", info.Cap)
	require.True(t, info.MintingAllowed)
}
