package subscriber

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// NewPubSubSource opens a pull subscription against Google Cloud Pub/Sub,
// which carries the SDM event feed. The subscription name must be fully
// qualified (projects/{project}/subscriptions/{subscription}).
//
// Delivery is constrained to one outstanding message at a time: the registry
// expects a single writer, and processing one event is cheap enough that
// pipelining buys nothing.
func NewPubSubSource(ctx context.Context, subscriptionName string, ts oauth2.TokenSource) (MessageSource, error) {
	match := subscriptionNameRegexp.FindStringSubmatch(subscriptionName)
	if match == nil {
		return nil, fmt.Errorf("'%s': %w", subscriptionName, ErrInvalidSubscription)
	}

	client, err := pubsub.NewClient(ctx, match[1], option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	sub := client.Subscription(match[2])
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = 1

	return &pubsubSource{sub: sub}, nil
}

type pubsubSource struct {
	sub *pubsub.Subscription
}

func (p *pubsubSource) Receive(ctx context.Context, handler func(context.Context, SourceMessage)) error {
	return p.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		handler(ctx, &pubsubMessage{m: m})
	})
}

type pubsubMessage struct {
	m *pubsub.Message
}

func (p *pubsubMessage) Data() []byte {
	return p.m.Data
}

func (p *pubsubMessage) Ack() {
	p.m.Ack()
}

func (p *pubsubMessage) Nack() {
	p.m.Nack()
}
