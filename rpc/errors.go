package rpc

import (
	"errors"
	"net/http"

	"presale/native/sale"
	"presale/native/token"
)

// writeEngineError maps engine sentinels onto JSON-RPC error codes so clients
// can branch on the specific rejection.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, sale.ErrNotOwner), errors.Is(err, token.ErrNotOwner):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, sale.ErrZeroAddress),
		errors.Is(err, sale.ErrInvalidAmount),
		errors.Is(err, sale.ErrInvalidPaymentToken),
		errors.Is(err, sale.ErrInvalidExchangeRate),
		errors.Is(err, sale.ErrBadNativeValue),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, token.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, sale.ErrSaleEnded),
		errors.Is(err, sale.ErrSaleStillOngoing),
		errors.Is(err, sale.ErrAssetNotAccepted),
		errors.Is(err, sale.ErrTransferFailed),
		errors.Is(err, token.ErrMintingNotAllowed),
		errors.Is(err, token.ErrCapExceeded),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		writeError(w, http.StatusConflict, id, codeServerError, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
	}
}
