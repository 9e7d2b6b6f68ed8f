package service

import "errors"

var (
	// ErrWalletUnavailable means no wallet capability is present
	ErrWalletUnavailable = errors.New("wallet unavailable")

	// ErrNetworkSetupFailed means the required network could not be selected or added
	ErrNetworkSetupFailed = errors.New("network setup failed")

	// ErrNoAccount means the wallet returned no authorized account
	ErrNoAccount = errors.New("no account available")

	// ErrNoActiveSession means the operation requires a connected session
	ErrNoActiveSession = errors.New("no active session")

	// ErrRecordStoreFailure means a user record could not be read or written
	ErrRecordStoreFailure = errors.New("record store failure")

	// ErrLedgerFetchFailure means a balance lookup failed. It never leaves the synchronizer.
	ErrLedgerFetchFailure = errors.New("ledger fetch failure")

	// ErrConnectInProgress means another connect or restore is already running
	ErrConnectInProgress = errors.New("connect already in progress")

	// ErrConnectAborted means the session was disconnected while it was being established
	ErrConnectAborted = errors.New("connect aborted")

	// ErrNoRememberedSession means restore was requested but no address is remembered
	ErrNoRememberedSession = errors.New("no remembered session")

	// ErrInvalidAmount means an xp award was not a positive integer
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidUsername means a username was empty or too long
	ErrInvalidUsername = errors.New("invalid username")
)
