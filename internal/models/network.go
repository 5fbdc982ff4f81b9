package models

// NativeCurrency describes a network's native asset.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network describes one chain as resolved from the registry. Immutable once
// validated; refreshed wholesale with the snapshot, never field-by-field.
// The RPC list excludes websocket and API-key-templated URLs.
type Network struct {
	ChainID        int64          `json:"chainId"`
	Name           string         `json:"name"`
	RPC            []string       `json:"rpc"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
	Explorers      []string       `json:"explorers,omitempty"`
}
