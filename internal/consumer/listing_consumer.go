package consumer

import (
	"context"
	"encoding/json"

	"github.com/Eursukkul/residence-booking/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Acknowledger is the subset of amqp.Delivery the consumer needs.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type ListingStore interface {
	Upsert(ctx context.Context, listing *models.Listing) error
}

type ListingConsumer struct {
	store  ListingStore
	logger zerolog.Logger
}

func NewListingConsumer(store ListingStore, logger zerolog.Logger) *ListingConsumer {
	return &ListingConsumer{store: store, logger: logger.With().Str("component", "listing_consumer").Logger()}
}

// Run applies listing messages to the local replica until msgs closes or ctx ends.
func (lc *ListingConsumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				lc.logger.Warn().Msg("channel closed, stopping consumer")
				return nil
			}
			lc.handle(ctx, msg.Body, msg)
		}
	}
}

func (lc *ListingConsumer) handle(ctx context.Context, body []byte, ack Acknowledger) {
	var listing models.Listing
	if err := json.Unmarshal(body, &listing); err != nil || listing.ID == 0 || listing.OwnerID == 0 {
		lc.logger.Error().Err(err).Msg("dropping malformed listing message")
		_ = ack.Nack(false, false)
		return
	}

	if err := lc.store.Upsert(ctx, &listing); err != nil {
		lc.logger.Error().Err(err).Uint("listing_id", listing.ID).Msg("failed to upsert listing")
		_ = ack.Nack(false, true)
		return
	}

	lc.logger.Info().Uint("listing_id", listing.ID).Str("title", listing.Title).Msg("synced listing")
	_ = ack.Ack(false)
}
