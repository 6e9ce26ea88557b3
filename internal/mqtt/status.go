package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// ReportStatus publishes snapshot() as a retained status message every interval
// until ctx is done.
func ReportStatus(ctx context.Context, pub Publisher, interval time.Duration, snapshot func() interface{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(snapshot())
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode status")
				continue
			}
			if err := pub.PublishStatus(payload); err != nil {
				log.Warn().Err(err).Msg("Failed to publish status")
			}
		}
	}
}
