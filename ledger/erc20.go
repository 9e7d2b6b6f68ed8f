package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrInvalidAddress is returned for an address that is not 20 bytes of hex
var ErrInvalidAddress = errors.New("invalid address")

var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// contractCaller is the read-only slice of ethclient the ledger needs
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20Client reads token balances from an ERC-20 contract
type ERC20Client struct {
	caller   contractCaller
	token    common.Address
	decimals int32
	limiter  *rate.Limiter
	close    func()
}

// Dial connects to an Ethereum JSON-RPC endpoint. requestsPerSecond <= 0 disables limiting.
func Dial(ctx context.Context, rpcURL, tokenAddress string, decimals int, requestsPerSecond float64) (*ERC20Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger rpc: %w", err)
	}

	ledger, err := NewERC20Client(client, tokenAddress, decimals, requestsPerSecond)
	if err != nil {
		client.Close()
		return nil, err
	}
	ledger.close = client.Close

	log.WithFields(log.Fields{
		"token":    ledger.token.Hex(),
		"decimals": decimals,
	}).Info("Connected to token ledger")
	return ledger, nil
}

// NewERC20Client builds a client over an existing caller
func NewERC20Client(caller contractCaller, tokenAddress string, decimals int, requestsPerSecond float64) (*ERC20Client, error) {
	if !common.IsHexAddress(tokenAddress) {
		return nil, fmt.Errorf("token contract %q: %w", tokenAddress, ErrInvalidAddress)
	}
	if decimals < 0 || decimals > 77 {
		return nil, fmt.Errorf("token decimals out of range: %d", decimals)
	}

	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}

	return &ERC20Client{
		caller:   caller,
		token:    common.HexToAddress(tokenAddress),
		decimals: int32(decimals),
		limiter:  rate.NewLimiter(limit, burst),
	}, nil
}

// BalanceOf returns the token balance of address in whole-token units
func (c *ERC20Client) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("holder %q: %w", address, ErrInvalidAddress)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("ledger rate limit: %w", err)
	}

	holder := common.HexToAddress(address)
	data := make([]byte, 0, len(balanceOfSelector)+common.HashLength)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(holder.Bytes(), common.HashLength)...)

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf call failed: %w", err)
	}
	if len(out) != common.HashLength {
		return decimal.Zero, fmt.Errorf("balanceOf returned %d bytes, expected %d", len(out), common.HashLength)
	}

	raw := new(big.Int).SetBytes(out)
	return decimal.NewFromBigInt(raw, -c.decimals), nil
}

// Close releases the underlying RPC connection
func (c *ERC20Client) Close() {
	if c.close != nil {
		c.close()
	}
}
