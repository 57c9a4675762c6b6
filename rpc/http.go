package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"presale/core/state"
	"presale/crypto"
	"presale/native/sale"
	"presale/native/token"
	"presale/observability/logging"
	"presale/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	// AuthTokenEnv names the environment variable carrying the bearer token
	// required for privileged methods.
	AuthTokenEnv = "PRESALE_RPC_TOKEN"

	requestsPerMinute = 120
	requestBurst      = 20
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

type Server struct {
	token  *token.Engine
	sale   *sale.Engine
	ledger *state.Manager
	logger *slog.Logger

	authToken string

	mu       sync.Mutex
	visitors map[string]*rate.Limiter

	httpSrv *http.Server
}

// NewServer wires the RPC surface over the two engines and the asset ledger.
// The bearer token for privileged methods is read from PRESALE_RPC_TOKEN.
func NewServer(tok *token.Engine, sl *sale.Engine, ledger *state.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		token:     tok,
		sale:      sl,
		ledger:    ledger,
		logger:    logger,
		authToken: strings.TrimSpace(os.Getenv(AuthTokenEnv)),
		visitors:  make(map[string]*rate.Limiter),
	}
}

// Start serves the JSON-RPC endpoint at / plus /metrics and /healthz, and
// blocks until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allow(r *http.Request) bool {
	id := clientID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.visitors[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), requestBurst)
		s.visitors[id] = limiter
	}
	return limiter.Allow()
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	tok := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tok == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(tok), []byte(s.authToken)) != 1 {
		s.logger.Warn("rejected RPC credentials",
			slog.String("remote", clientID(r)),
			logging.MaskSecret("token", tok),
		)
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allow(r) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	failed := s.dispatch(w, r, req)
	metrics.RPC().ObserveRequest(req.Method, time.Since(start), failed)
}

// dispatch routes the request and reports whether the handler answered with
// an error. Methods that move funds or change administration require the
// bearer token.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	privileged := map[string]bool{
		"sale_setRate":                true,
		"sale_unsetRate":              true,
		"sale_withdraw":               true,
		"sale_withdrawNative":         true,
		"sale_transferOwnership":      true,
		"token_mint":                  true,
		"token_setMintingAllowed":     true,
		"token_setMintTimeLimitation": true,
		"token_transferOwnership":     true,
	}
	if privileged[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return true
		}
	}

	switch req.Method {
	case "sale_buyTokens":
		return s.handleBuyTokens(w, req)
	case "sale_buyTokensNative":
		return s.handleBuyTokensNative(w, req)
	case "sale_setRate":
		return s.handleSetRate(w, req)
	case "sale_unsetRate":
		return s.handleUnsetRate(w, req)
	case "sale_withdraw":
		return s.handleWithdraw(w, req)
	case "sale_withdrawNative":
		return s.handleWithdrawNative(w, req)
	case "sale_transferOwnership":
		return s.handleSaleTransferOwnership(w, req)
	case "sale_info":
		return s.handleSaleInfo(w, req)
	case "sale_getRate":
		return s.handleGetRate(w, req)
	case "sale_getReceipt":
		return s.handleGetReceipt(w, req)
	case "sale_listReceipts":
		return s.handleListReceipts(w, req)
	case "token_info":
		return s.handleTokenInfo(w, req)
	case "token_balanceOf":
		return s.handleTokenBalanceOf(w, req)
	case "token_totalSupply":
		return s.handleTokenTotalSupply(w, req)
	case "token_allowance":
		return s.handleTokenAllowance(w, req)
	case "token_transfer":
		return s.handleTokenTransfer(w, req)
	case "token_approve":
		return s.handleTokenApprove(w, req)
	case "token_transferFrom":
		return s.handleTokenTransferFrom(w, req)
	case "token_mint":
		return s.handleTokenMint(w, req)
	case "token_setMintingAllowed":
		return s.handleSetMintingAllowed(w, req)
	case "token_setMintTimeLimitation":
		return s.handleSetMintTimeLimitation(w, req)
	case "token_transferOwnership":
		return s.handleTokenTransferOwnership(w, req)
	case "asset_balanceOf":
		return s.handleAssetBalanceOf(w, req)
	case "asset_approve":
		return s.handleAssetApprove(w, req)
	case "native_balanceOf":
		return s.handleNativeBalanceOf(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return true
	}
}

func decodeParam(raw json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func parseAddress(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Raw(), nil
}

func formatAddress(raw [20]byte) string {
	return crypto.NewAddress(raw[:]).String()
}
