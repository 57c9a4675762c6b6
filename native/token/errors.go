package token

import "errors"

var (
	// ErrNotOwner marks privileged calls from anyone but the current owner.
	ErrNotOwner = errors.New("token: caller is not the owner")
	// ErrZeroAddress marks operations that target the all-zero sentinel account.
	ErrZeroAddress = errors.New("token: zero address")
	// ErrInvalidAmount marks non-positive quantities.
	ErrInvalidAmount = errors.New("token: amount must be positive")
	// ErrMintingNotAllowed is returned when minting is disabled or the mint
	// window has elapsed.
	ErrMintingNotAllowed = errors.New("token: minting not allowed")
	// ErrCapExceeded is returned when a mint would push the supply past the cap.
	ErrCapExceeded = errors.New("token: cap exceeded")
	// ErrInsufficientBalance marks transfers exceeding the sender's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance marks pulls exceeding the approved amount.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)
