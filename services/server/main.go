package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/crystal-nostr-relay/lib/config"
	"github.com/mattn/crystal-nostr-relay/lib/handlers/nostr/universal"
	"github.com/mattn/crystal-nostr-relay/lib/logging"
	"github.com/mattn/crystal-nostr-relay/lib/signing"
	"github.com/mattn/crystal-nostr-relay/lib/stores"
	stores_badger "github.com/mattn/crystal-nostr-relay/lib/stores/badger"
	stores_memory "github.com/mattn/crystal-nostr-relay/lib/stores/memory"
	ws "github.com/mattn/crystal-nostr-relay/lib/transports/websocket"
)

const sweepInterval = time.Minute

func main() {
	if err := config.InitConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.InitLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := ensureRelayKey(); err != nil {
		logging.Fatalf("Failed to set up relay key: %v", err)
	}

	store, err := openStore()
	if err != nil {
		logging.Fatalf("Failed to open event store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if deleter, ok := store.(stores.ExpiredDeleter); ok {
		stores.StartExpirationSweeper(ctx, deleter, sweepInterval)
	}

	pipeline := universal.New(store, ws.Bus{})
	app := ws.BuildServer(store, pipeline)

	go func() {
		if err := ws.StartServer(app); err != nil {
			logging.Fatalf("Web server failed: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logging.Info("Shutting down")
	cancel()

	if err := ws.Shutdown(app); err != nil {
		logging.Errorf("Error shutting down web server: %v", err)
	}
	if err := store.Close(); err != nil {
		logging.Errorf("Error closing event store: %v", err)
	}

	logging.Close()
}

// ensureRelayKey generates and persists a relay keypair on first run
// so the NIP-11 document can advertise a stable pubkey.
func ensureRelayKey() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	if cfg.Relay.PrivateKey != "" {
		_, publicKey, err := signing.DeserializePrivateKey(cfg.Relay.PrivateKey)
		if err != nil {
			return fmt.Errorf("configured private key is invalid: %w", err)
		}
		logging.Infof("Relay pubkey: %s", signing.XOnlyPubKeyHex(publicKey))
		return nil
	}

	privateKey, err := signing.GeneratePrivateKey()
	if err != nil {
		return err
	}

	nsec, err := signing.SerializePrivateKey(privateKey)
	if err != nil {
		return err
	}

	if err := config.UpdateConfig("relay.private_key", nsec, true); err != nil {
		return err
	}

	logging.Infof("Generated relay key, pubkey: %s", signing.XOnlyPubKeyHex(privateKey.PubKey()))
	return nil
}

func openStore() (stores.Store, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	var store stores.Store
	if cfg.Server.Memory {
		logging.Info("Using in-memory event store")
		store = &stores_memory.MemoryStore{}
	} else {
		store = &stores_badger.BadgerStore{}
	}

	if err := store.InitStore(config.GetPath("events")); err != nil {
		return nil, err
	}
	return store, nil
}
