package consensus

import "strings"

// UsableEndpoints filters an RPC URL list down to the endpoints worth
// querying. Websocket and API-key-templated URLs are excluded up front and
// never counted as failures.
func UsableEndpoints(urls []string) []string {
	usable := make([]string, 0, len(urls))
	for _, u := range urls {
		if IsUsableEndpoint(u) {
			usable = append(usable, u)
		}
	}
	return usable
}

// IsUsableEndpoint reports whether a single RPC URL can be queried directly.
func IsUsableEndpoint(url string) bool {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "ws://") || strings.HasPrefix(trimmed, "wss://") {
		return false
	}
	// Chain registries publish templated URLs like
	// https://rpc.example.org/${INFURA_API_KEY}; unusable without a key.
	if strings.Contains(trimmed, "${") || strings.Contains(trimmed, "{") {
		return false
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return false
	}
	return true
}
