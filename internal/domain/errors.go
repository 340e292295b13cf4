package domain

import "errors"

var (
	ErrActorNotFound      = errors.New("actor not found")
	ErrListingNotFound    = errors.New("listing not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrSignalNotFound     = errors.New("fraud signal not found")
	ErrInvalidAmount      = errors.New("gross amount must be positive")
	ErrInvalidPayment     = errors.New("invalid payment event")
	ErrDuplicatePayment   = errors.New("payment already has a ledger")
	ErrSelfDelegation     = errors.New("listing cannot delegate commission to its owner")
	ErrNotListingOwner    = errors.New("only the listing owner can change delegation")
	ErrCodeSpaceExhausted = errors.New("referral code generation kept colliding; check alphabet and length")
	ErrInvalidCodeConfig  = errors.New("invalid referral code configuration")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrAlreadyReversed    = errors.New("payment ledger already reversed")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCreds       = errors.New("invalid email or password")
)
