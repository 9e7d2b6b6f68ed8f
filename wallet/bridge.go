package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"insightquest/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultRequestTimeout   = 2 * time.Minute
	writeTimeout            = 10 * time.Second
)

// Bridge is a WalletProvider that relays EIP-1193 requests to a wallet over a websocket.
// Every value the wallet sends back is validated here before it reaches the session core.
type Bridge struct {
	url            string
	dialer         websocket.Dialer
	requestTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan rpcResponse
	nextID  int64
	closed  chan struct{}

	writeMu sync.Mutex

	listenerMu   sync.Mutex
	listeners    map[int]func(models.WalletChange)
	nextListener int
}

// NewBridge creates a bridge for the given websocket URL. Connect must be called before use.
func NewBridge(url string) *Bridge {
	return &Bridge{
		url:            url,
		dialer:         websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		requestTimeout: defaultRequestTimeout,
		pending:        make(map[int64]chan rpcResponse),
		listeners:      make(map[int]func(models.WalletChange)),
	}
}

// Connect dials the bridge. Calling it while connected is a no-op.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}

	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", b.url, err)
	}

	b.conn = conn
	b.closed = make(chan struct{})
	go b.readLoop(conn, b.closed)

	log.WithField("url", b.url).Info("Connected to wallet bridge")
	return nil
}

// Close shuts the connection and fails every outstanding request
func (b *Bridge) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		return nil
	}

	b.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout),
	)
	b.writeMu.Unlock()

	return conn.Close()
}

// Available reports whether the bridge connection is open
func (b *Bridge) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// CurrentNetworkID returns the wallet's chain id as lowercase hex
func (b *Bridge) CurrentNetworkID(ctx context.Context) (string, error) {
	result, err := b.call(ctx, "eth_chainId")
	if err != nil {
		return "", err
	}
	return parseChainID(result)
}

// RequestNetworkSwitch asks the wallet to move to networkID
func (b *Bridge) RequestNetworkSwitch(ctx context.Context, networkID string) (models.SwitchResult, error) {
	_, err := b.call(ctx, "wallet_switchEthereumChain", map[string]any{"chainId": networkID})
	switch {
	case err == nil:
		return models.SwitchOK, nil
	case errors.Is(err, ErrUnknownNetwork):
		return models.SwitchUnknownNetwork, nil
	case errors.Is(err, ErrUserRejected):
		return models.SwitchRejected, nil
	default:
		return models.SwitchRejected, err
	}
}

// RequestAddNetwork asks the wallet to add network. A refusal is reported as false, not an error.
func (b *Bridge) RequestAddNetwork(ctx context.Context, network models.NetworkDescriptor) (bool, error) {
	params := map[string]any{
		"chainId":   network.ChainID,
		"chainName": network.ChainName,
		"rpcUrls":   network.RPCURLs,
		"nativeCurrency": map[string]any{
			"name":     network.CurrencyName,
			"symbol":   network.CurrencySymbol,
			"decimals": network.Decimals,
		},
	}
	if len(network.ExplorerURLs) > 0 {
		params["blockExplorerUrls"] = network.ExplorerURLs
	}

	_, err := b.call(ctx, "wallet_addEthereumChain", params)
	if errors.Is(err, ErrUserRejected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RequestAccounts asks the wallet for authorized accounts, returned lowercase
func (b *Bridge) RequestAccounts(ctx context.Context) ([]string, error) {
	result, err := b.call(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, err
	}
	return parseAccounts(result)
}

// WatchAsset asks the wallet to track an ERC-20 token
func (b *Bridge) WatchAsset(ctx context.Context, asset models.TokenAsset) (bool, error) {
	options := map[string]any{
		"address":  asset.Address,
		"symbol":   asset.Symbol,
		"decimals": asset.Decimals,
	}
	if asset.Image != "" {
		options["image"] = asset.Image
	}

	// wallet_watchAsset takes an object, not an array
	result, err := b.callRaw(ctx, "wallet_watchAsset", map[string]any{
		"type":    "ERC20",
		"options": options,
	})
	if errors.Is(err, ErrUserRejected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result.Bool(), nil
}

// OnNetworkOrAccountChanged registers listener for chainChanged and accountsChanged
// notifications. Listeners run on the read goroutine and must not call back into the bridge.
func (b *Bridge) OnNetworkOrAccountChanged(listener func(models.WalletChange)) func() {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()

	id := b.nextListener
	b.nextListener++
	b.listeners[id] = listener

	return func() {
		b.listenerMu.Lock()
		defer b.listenerMu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *Bridge) call(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	if params == nil {
		params = []any{}
	}
	return b.send(ctx, method, params)
}

func (b *Bridge) callRaw(ctx context.Context, method string, params any) (gjson.Result, error) {
	return b.send(ctx, method, params)
}

func (b *Bridge) send(ctx context.Context, method string, params any) (gjson.Result, error) {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return gjson.Result{}, ErrNotConnected
	}
	b.nextID++
	id := b.nextID
	reply := make(chan rpcResponse, 1)
	b.pending[id] = reply
	closed := b.closed
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	msg := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	b.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(msg)
	b.writeMu.Unlock()
	if err != nil {
		return gjson.Result{}, fmt.Errorf("send %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.requestTimeout)
	defer cancel()

	select {
	case resp := <-reply:
		if resp.err != nil {
			return gjson.Result{}, fmt.Errorf("%s: %w", method, resp.err)
		}
		return resp.result, nil
	case <-closed:
		return gjson.Result{}, fmt.Errorf("%s: %w", method, ErrNotConnected)
	case <-ctx.Done():
		return gjson.Result{}, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (b *Bridge) readLoop(conn *websocket.Conn, closed chan struct{}) {
	defer func() {
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		b.mu.Unlock()
		close(closed)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.WithFields(log.Fields{
					"url":   b.url,
					"error": err,
				}).Warn("Wallet bridge connection lost")
			}
			return
		}

		if !gjson.ValidBytes(data) {
			log.WithField("size", len(data)).Warn("Ignoring malformed wallet bridge message")
			continue
		}

		if id := gjson.GetBytes(data, "id"); id.Exists() && id.Type == gjson.Number {
			b.deliver(id.Int(), data)
			continue
		}

		b.notify(data)
	}
}

func (b *Bridge) deliver(id int64, data []byte) {
	b.mu.Lock()
	reply, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		log.WithField("id", id).Debug("Dropping wallet response with no pending request")
		return
	}

	var resp rpcResponse
	if errObj := gjson.GetBytes(data, "error"); errObj.Exists() && errObj.Type != gjson.Null {
		resp.err = parseRPCError(errObj)
	} else {
		resp.result = gjson.GetBytes(data, "result")
	}

	select {
	case reply <- resp:
	default:
	}
}

func (b *Bridge) notify(data []byte) {
	method := gjson.GetBytes(data, "method").String()
	param := gjson.GetBytes(data, "params.0")

	var change models.WalletChange
	switch method {
	case "chainChanged":
		networkID, err := parseChainID(param)
		if err != nil {
			log.WithField("error", err).Warn("Ignoring invalid chainChanged notification")
			return
		}
		change = models.WalletChange{Kind: models.WalletChangeNetwork, NetworkID: networkID}
	case "accountsChanged":
		accounts, err := parseAccounts(param)
		if err != nil {
			log.WithField("error", err).Warn("Ignoring invalid accountsChanged notification")
			return
		}
		change = models.WalletChange{Kind: models.WalletChangeAccounts, Accounts: accounts}
	default:
		log.WithField("method", method).Debug("Ignoring wallet notification")
		return
	}

	b.listenerMu.Lock()
	listeners := make([]func(models.WalletChange), 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.listenerMu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}

func parseChainID(result gjson.Result) (string, error) {
	if result.Type != gjson.String {
		return "", fmt.Errorf("%w: chain id %s", ErrInvalidResponse, result.Raw)
	}
	id := strings.ToLower(strings.TrimSpace(result.String()))
	if !strings.HasPrefix(id, "0x") || len(id) < 3 {
		return "", fmt.Errorf("%w: chain id %q", ErrInvalidResponse, id)
	}
	for _, c := range id[2:] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", fmt.Errorf("%w: chain id %q", ErrInvalidResponse, id)
		}
	}
	return id, nil
}

func parseAccounts(result gjson.Result) ([]string, error) {
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: accounts %s", ErrInvalidResponse, result.Raw)
	}

	var accounts []string
	for _, item := range result.Array() {
		if item.Type != gjson.String || !strings.HasPrefix(item.String(), "0x") || !common.IsHexAddress(item.String()) {
			return nil, fmt.Errorf("%w: account %s", ErrInvalidResponse, item.Raw)
		}
		accounts = append(accounts, strings.ToLower(item.String()))
	}
	return accounts, nil
}
