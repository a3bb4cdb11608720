package integration

import (
	"context"
	"encoding/json"
	"time"

	invrepo "github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// Syncer pushes sellable quantities to external platforms. Sync runs outside
// any inventory transaction: it reads committed state and tolerates being a
// little behind, because every mutation enqueues a fresh sync request.
type Syncer struct {
	records     *invrepo.RecordRepository
	adapters    map[string]PlatformAdapter
	maxAttempts int
	backoff     time.Duration
	logger      *logger.Logger
}

// NewSyncer creates a platform syncer
func NewSyncer(records *invrepo.RecordRepository, cfg config.IntegrationConfig, log *logger.Logger) *Syncer {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return &Syncer{
		records:     records,
		adapters:    make(map[string]PlatformAdapter),
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      log.WithComponent("platform-sync"),
	}
}

// Register adds a platform adapter.
func (s *Syncer) Register(adapter PlatformAdapter) {
	s.adapters[adapter.Name()] = adapter
}

// SyncProduct pushes a product's aggregate available quantity to one platform,
// or to every registered platform when platform is empty. Returns the results
// of the successful pushes; a platform that stays down after the bounded
// retries fails the sync.
func (s *Syncer) SyncProduct(ctx context.Context, productID, platform string) ([]SyncResult, error) {
	recs, err := s.records.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	available := 0
	for _, rec := range recs {
		available += rec.Available()
	}

	targets := make([]PlatformAdapter, 0, len(s.adapters))
	if platform != "" {
		adapter, ok := s.adapters[platform]
		if !ok {
			return nil, errors.NotFound("platform " + platform)
		}
		targets = append(targets, adapter)
	} else {
		for _, adapter := range s.adapters {
			targets = append(targets, adapter)
		}
	}

	results := make([]SyncResult, 0, len(targets))
	for _, adapter := range targets {
		// check cancellation between platforms so shutdown is prompt
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := s.pushWithRetry(ctx, adapter, productID, available)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *Syncer) pushWithRetry(ctx context.Context, adapter PlatformAdapter, productID string, quantity int) (SyncResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, err := adapter.UpdateInventory(ctx, productID, quantity)
		if err == nil {
			return result, nil
		}
		lastErr = err

		s.logger.WithError(err).Warn().
			Str("platform", adapter.Name()).
			Str("product_id", productID).
			Int("attempt", attempt).
			Msg("platform sync attempt failed")

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return SyncResult{}, ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return SyncResult{}, lastErr
}

// HandleSyncRequested is the broker handler for platform.sync.requested
// messages.
func (s *Syncer) HandleSyncRequested(ctx context.Context, envelope *messaging.Envelope) error {
	var data messaging.SyncRequestedData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return err
	}
	if data.ProductID == "" {
		s.logger.Warn().Str("message_id", envelope.ID).Msg("sync request without product id dropped")
		return nil
	}

	_, err := s.SyncProduct(ctx, data.ProductID, data.Platform)
	return err
}
