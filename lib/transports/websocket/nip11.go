package websocket

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mattn/crystal-nostr-relay/lib/config"
	"github.com/mattn/crystal-nostr-relay/lib/logging"
	"github.com/mattn/crystal-nostr-relay/lib/signing"
)

// handleRelayInfoRequests serves the NIP-11 information document when
// a plain GET asks for application/nostr+json; everything else falls
// through to the WebSocket upgrade.
func handleRelayInfoRequests(c *fiber.Ctx) error {
	if c.Method() == "GET" && c.Get("Accept") == "application/nostr+json" {
		c.Set("Access-Control-Allow-Origin", "*")
		return c.JSON(GetRelayInfo())
	}
	return c.Next()
}

func GetRelayInfo() NIP11RelayInfo {
	relayInfo := NIP11RelayInfo{
		Software:      relaySoftware,
		Version:       relayVersion,
		SupportedNIPs: supportedNIPs,
	}

	cfg, err := config.GetConfig()
	if err != nil {
		logging.Errorf("Failed to load config for relay info: %v", err)
		return relayInfo
	}

	relayInfo.Name = cfg.Relay.Name
	relayInfo.Description = cfg.Relay.Description
	relayInfo.Contact = cfg.Relay.Contact

	if cfg.Relay.PrivateKey != "" {
		_, publicKey, err := signing.DeserializePrivateKey(cfg.Relay.PrivateKey)
		if err != nil {
			logging.Errorf("Failed to derive relay pubkey: %v", err)
		} else {
			relayInfo.Pubkey = signing.XOnlyPubKeyHex(publicKey)
		}
	}

	return relayInfo
}
