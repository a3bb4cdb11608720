package service

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/notification/repository"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// Router fans committed events out to recipients as persisted notifications.
// Delivery is isolated per recipient: one failing recipient never blocks the
// others, and duplicate deliveries of the same event are collapsed by the
// deduper.
type Router struct {
	notifications *repository.NotificationRepository
	resolver      *Resolver
	deduper       Deduper
	logger        *logger.Logger
}

// NewRouter creates a notification router
func NewRouter(
	notifications *repository.NotificationRepository,
	resolver *Resolver,
	deduper Deduper,
	log *logger.Logger,
) *Router {
	return &Router{
		notifications: notifications,
		resolver:      resolver,
		deduper:       deduper,
		logger:        log.WithComponent("notification-router"),
	}
}

// Subscribe attaches the router to the bus for every event name.
func (r *Router) Subscribe(bus *events.Bus) {
	bus.SubscribeAll(r.Handle)
}

// Handle routes one event. Recipient resolution errors fail the whole event;
// per-recipient delivery errors are logged and skipped.
func (r *Router) Handle(ctx context.Context, ev events.Event) error {
	recipients, err := r.resolver.Recipients(ctx, ev)
	if err != nil {
		return err
	}

	for _, recipient := range recipients {
		first, err := r.deduper.FirstDelivery(ctx, ev.ID, recipient)
		if err != nil {
			r.logger.WithError(err).Error().
				Str("event", ev.Name).
				Str("recipient", recipient).
				Msg("notification dedup check failed")
			continue
		}
		if !first {
			continue
		}

		if err := r.notifications.Create(ctx, &repository.Notification{
			Recipient: recipient,
			EventID:   ev.ID,
			EventName: ev.Name,
			Payload:   ev.Payload,
		}); err != nil {
			r.logger.WithError(err).Error().
				Str("event", ev.Name).
				Str("recipient", recipient).
				Msg("notification delivery failed")
			continue
		}
	}

	return nil
}
