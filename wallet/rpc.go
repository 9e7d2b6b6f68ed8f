package wallet

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
	codeInternal          = -32603
)

var (
	// ErrUserRejected means the wallet user declined the request
	ErrUserRejected = errors.New("user rejected the request")

	// ErrUnknownNetwork means the wallet does not know the requested chain
	ErrUnknownNetwork = errors.New("unrecognized chain")

	// ErrNotConnected means there is no open bridge connection
	ErrNotConnected = errors.New("wallet bridge not connected")

	// ErrInvalidResponse means the wallet returned a payload of the wrong shape
	ErrInvalidResponse = errors.New("invalid wallet response")
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	result gjson.Result
	err    error
}

// RPCError is an error object returned by the wallet
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// Is maps provider codes onto the package sentinels
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrUserRejected:
		return e.Code == CodeUserRejected
	case ErrUnknownNetwork:
		return e.Code == CodeUnrecognizedChain
	}
	return false
}

// parseRPCError converts an error object. Some mobile wallets wrap the real code
// in data.originalError.code under a generic internal error.
func parseRPCError(obj gjson.Result) *RPCError {
	rpcErr := &RPCError{
		Code:    obj.Get("code").Int(),
		Message: obj.Get("message").String(),
	}
	if rpcErr.Code == codeInternal {
		if original := obj.Get("data.originalError.code"); original.Exists() {
			rpcErr.Code = original.Int()
		}
	}
	return rpcErr
}
