package sale

import "errors"

var (
	// ErrNotOwner marks privileged calls from anyone but the current owner.
	ErrNotOwner = errors.New("sale: caller is not the owner")
	// ErrZeroAddress marks ownership transfers to the all-zero sentinel.
	ErrZeroAddress = errors.New("sale: zero address")
	// ErrInvalidPaymentToken marks rate updates for the zero-address asset.
	ErrInvalidPaymentToken = errors.New("sale: invalid payment token")
	// ErrInvalidExchangeRate marks rate pairs with a zero component.
	ErrInvalidExchangeRate = errors.New("sale: invalid exchange rate")
	// ErrInvalidAmount marks non-positive purchase quantities.
	ErrInvalidAmount = errors.New("sale: amount must be positive")
	// ErrSaleEnded rejects purchases after the sale deadline.
	ErrSaleEnded = errors.New("sale: sale ended")
	// ErrSaleStillOngoing rejects withdrawals before the sale deadline.
	ErrSaleStillOngoing = errors.New("sale: sale still ongoing")
	// ErrAssetNotAccepted marks purchases against an unset rate pair.
	ErrAssetNotAccepted = errors.New("sale: asset not accepted")
	// ErrBadNativeValue marks native purchases whose attached value does not
	// match the required payment exactly.
	ErrBadNativeValue = errors.New("sale: bad native value")
	// ErrTransferFailed wraps payment-primitive rejections.
	ErrTransferFailed = errors.New("sale: transfer failed")
)
