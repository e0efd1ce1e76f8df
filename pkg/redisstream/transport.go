package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/socratic/pkg/events"
)

// Transport is the publisher/subscriber pair events travel over: an
// in-memory Go channel by default, Redis Streams when enabled.
type Transport struct {
	settings  Settings
	logger    watermill.LoggerAdapter
	Publisher message.Publisher

	memory *gochannel.GoChannel
	client *redis.Client
}

// Build constructs the transport described by s.
func Build(s Settings) (*Transport, error) {
	logger := events.NewWatermillLogger(log.Logger)
	if !s.Enabled {
		// blocking until ack keeps per-topic delivery in publication order
		ps := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		return &Transport{settings: s, logger: logger, Publisher: ps, memory: ps}, nil
	}

	s = s.WithDefaults()
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream publisher")
	}
	log.Info().Str("component", "redisstream").Str("addr", s.Addr).Msg("using redis streams transport")
	return &Transport{settings: s, logger: logger, Publisher: pub, client: client}, nil
}

// UsesRedis reports whether events travel over Redis Streams.
func (t *Transport) UsesRedis() bool { return t.client != nil }

// Subscriber returns a subscriber for topic. With Redis every caller gets its
// own consumer group (positioned at the stream tail) and owns the returned
// subscriber; in memory the shared Go channel is returned and owned is false.
func (t *Transport) Subscriber(ctx context.Context, name, topic string) (sub message.Subscriber, owned bool, err error) {
	if t.memory != nil {
		return t.memory, false, nil
	}
	group := t.settings.Group + "-" + name
	if err := EnsureGroupAtTail(ctx, t.client, topic, group); err != nil {
		return nil, false, err
	}
	sub, err = rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        t.client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: group,
		Consumer:      t.settings.Consumer,
	}, t.logger)
	if err != nil {
		return nil, false, errors.Wrapf(err, "create redis stream subscriber for %s", topic)
	}
	return sub, true, nil
}

func (t *Transport) Close() error {
	err := t.Publisher.Close()
	if t.client != nil {
		if cerr := t.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// Ignore BUSYGROUP errors (group already exists)
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", group, stream)
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
