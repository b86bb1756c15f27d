package stores

import (
	"context"
	"time"

	"github.com/mattn/crystal-nostr-relay/lib/logging"
)

// ExpiredDeleter is implemented by backends that index expiration
// timestamps and can purge past-due events in bulk.
type ExpiredDeleter interface {
	DeleteExpired(now int64) (int, error)
}

// StartExpirationSweeper periodically purges expired events until the
// context is cancelled. Query paths already suppress expired events;
// the sweeper reclaims their storage.
func StartExpirationSweeper(ctx context.Context, store ExpiredDeleter, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := store.DeleteExpired(time.Now().Unix())
				if err != nil {
					logging.Errorf("Expiration sweep failed: %v", err)
					continue
				}
				if removed > 0 {
					logging.Infof("Expiration sweep removed %d events", removed)
				}
			}
		}
	}()
}
