package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// Sweeper runs two background duties on a shared interval: purging expired
// records, and redelivering events of operations that committed but crashed
// before their events reached the bus. Redelivery is at-least-once; bus
// subscribers deduplicate by event id.
type Sweeper struct {
	store          *Store
	bus            *events.Bus
	interval       time.Duration
	redeliverAfter time.Duration
	logger         *logger.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(store *Store, bus *events.Bus, interval, redeliverAfter time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		store:          store,
		bus:            bus,
		interval:       interval,
		redeliverAfter: redeliverAfter,
		logger:         log.WithComponent("idempotency-sweeper"),
	}
}

// Run blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if n, err := s.Redeliver(ctx); err != nil {
		s.logger.Error().Err(err).Msg("event redelivery failed")
	} else if n > 0 {
		s.logger.Info().Int("records", n).Msg("redelivered unpublished events")
	}

	if n, err := s.store.Purge(ctx); err != nil {
		s.logger.Error().Err(err).Msg("purge failed")
	} else if n > 0 {
		s.logger.Info().Int64("records", n).Msg("purged expired idempotency records")
	}
}

// Redeliver publishes the buffered events of completed-but-unpublished
// records and marks them published. Returns the number of records handled.
func (s *Sweeper) Redeliver(ctx context.Context) (int, error) {
	recs, err := s.store.Unpublished(ctx, s.redeliverAfter)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, rec := range recs {
		var evs []events.Event
		if len(rec.Events) > 0 {
			if err := json.Unmarshal(rec.Events, &evs); err != nil {
				s.logger.Error().Err(err).Str("key", rec.Key).Msg("failed to decode buffered events, marking published")
			}
		}

		s.bus.PublishAll(ctx, evs)

		if err := s.store.MarkPublished(ctx, rec.Key); err != nil {
			return handled, err
		}
		handled++
	}

	return handled, nil
}
