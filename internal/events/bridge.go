// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/fleetglass/fleetglass/internal/config"
	"github.com/fleetglass/fleetglass/internal/metrics"
	"github.com/fleetglass/fleetglass/internal/models"
)

// Broadcaster receives live updates replayed from the event stream.
// The relay hub satisfies this interface.
type Broadcaster interface {
	Publish(update models.LiveUpdate)
}

// Bridge consumes location.recorded events from JetStream and
// re-broadcasts them to relay clients. A durable queue consumer means
// samples recorded while the relay was down are delivered on restart.
type Bridge struct {
	subscriber message.Subscriber
	hub        Broadcaster
	logger     watermill.LoggerAdapter
}

// NewBridge creates a durable JetStream subscriber bound to the location
// stream.
func NewBridge(cfg *config.NATSConfig, url string, hub Broadcaster) (*Bridge, error) {
	logger := newWatermillLogger()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("bridge disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("bridge reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(3),
		natsgo.MaxAckPending(256),
		natsgo.AckWait(30 * time.Second),
		natsgo.DeliverNew(),
		natsgo.BindStream(StreamName),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &Bridge{
		subscriber: sub,
		hub:        hub,
		logger:     logger,
	}, nil
}

// Run consumes recorded locations until the context is canceled.
// Unparseable payloads are acked and counted rather than redelivered.
func (b *Bridge) Run(ctx context.Context) error {
	messages, err := b.subscriber.Subscribe(ctx, TopicLocationRecorded)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicLocationRecorded, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handleMessage(msg)
		}
	}
}

func (b *Bridge) handleMessage(msg *message.Message) {
	var update models.LiveUpdate
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		metrics.NATSParseFailures.Inc()
		b.logger.Error("unparseable location event", err, watermill.LogFields{
			"message_uuid": msg.UUID,
		})
		msg.Ack()
		return
	}

	b.hub.Publish(update)
	metrics.NATSMessagesConsumed.Inc()
	msg.Ack()
}

// Close gracefully shuts down the subscriber.
func (b *Bridge) Close() error {
	return b.subscriber.Close()
}
