package models

// NetworkDescriptor describes the chain a wallet is asked to add
type NetworkDescriptor struct {
	ChainID        string
	ChainName      string
	RPCURLs        []string
	CurrencyName   string
	CurrencySymbol string
	Decimals       int
	ExplorerURLs   []string
}

// TokenAsset describes the reward token the wallet is asked to watch
type TokenAsset struct {
	Address  string
	Symbol   string
	Decimals int
	Image    string
}

// SwitchResult is the outcome of a network switch request
type SwitchResult int

const (
	SwitchOK SwitchResult = iota
	SwitchRejected
	SwitchUnknownNetwork
)

func (r SwitchResult) String() string {
	switch r {
	case SwitchOK:
		return "ok"
	case SwitchRejected:
		return "rejected"
	case SwitchUnknownNetwork:
		return "unknown_network"
	default:
		return "invalid"
	}
}

// WalletChangeKind identifies what a provider notification is about
type WalletChangeKind string

const (
	WalletChangeNetwork  WalletChangeKind = "network"
	WalletChangeAccounts WalletChangeKind = "accounts"
)

// WalletChange is a validated provider notification
type WalletChange struct {
	Kind      WalletChangeKind
	NetworkID string   // set for WalletChangeNetwork
	Accounts  []string // set for WalletChangeAccounts, lowercase
}
