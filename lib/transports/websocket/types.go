package websocket

// NIP11RelayInfo is the relay information document served to clients
// requesting application/nostr+json.
type NIP11RelayInfo struct {
	Name          string `json:"name,omitempty"`
	Description   string `json:"description,omitempty"`
	Pubkey        string `json:"pubkey,omitempty"`
	Contact       string `json:"contact,omitempty"`
	Icon          string `json:"icon,omitempty"`
	SupportedNIPs []int  `json:"supported_nips,omitempty"`
	Software      string `json:"software,omitempty"`
	Version       string `json:"version,omitempty"`
}

const (
	relaySoftware = "https://github.com/mattn/crystal-nostr-relay"
	relayVersion  = "0.1.0"
)

// NIPs the relay implements: basic protocol, deletion, relay info,
// expiration, count, protected events.
var supportedNIPs = []int{1, 9, 11, 40, 45, 70}
