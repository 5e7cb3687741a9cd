package subscriber

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/shimmeringbee/logwrap"
	"github.com/willowbee/nestsdm/api"
	"github.com/willowbee/nestsdm/event"
	"github.com/willowbee/nestsdm/state"
)

type SubscriberError string

func (s SubscriberError) Error() string {
	return string(s)
}

const ErrInvalidSubscription = SubscriberError("subscription name must match projects/*/subscriptions/*")

var subscriptionNameRegexp = regexp.MustCompile(`^projects/([^/]+)/subscriptions/([^/]+)$`)

// SourceMessage is one raw message from the feed. Ack confirms processing;
// Nack requests redelivery.
type SourceMessage interface {
	Data() []byte
	Ack()
	Nack()
}

// MessageSource delivers feed messages one at a time until the context is
// cancelled. Delivery is at-least-once with no ordering guarantee.
type MessageSource interface {
	Receive(ctx context.Context, handler func(context.Context, SourceMessage)) error
}

// Session owns the device registry for one authenticated connection and
// keeps it synchronized: an initial REST load, then incremental updates from
// the message source, with a full re-sync whenever the stream and registry
// disagree.
type Session struct {
	api      *api.Client
	source   MessageSource
	registry *state.Registry
	applier  *event.Applier
	logger   logwrap.Logger
}

func NewSession(apiClient *api.Client, source MessageSource, l logwrap.Logger) *Session {
	registry := state.NewRegistry(l)

	return &Session{
		api:      apiClient,
		source:   source,
		registry: registry,
		applier:  event.NewApplier(registry, l),
		logger:   l,
	}
}

// Registry exposes the session's device registry for reads and observer
// registration.
func (s *Session) Registry() *state.Registry {
	return s.registry
}

// Resync replaces the registry contents with a fresh REST snapshot.
func (s *Session) Resync(ctx context.Context) error {
	structures, err := s.api.Structures(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch structures: %w", err)
	}

	devices, err := s.api.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch devices: %w", err)
	}

	if err := s.registry.Load(devices, structures); err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	s.logger.LogInfo(ctx, "Synchronized registry from REST snapshot.",
		logwrap.Datum("devices", len(devices)), logwrap.Datum("structures", len(structures)))

	return nil
}

// Start performs the initial sync and then consumes the message source until
// the context is cancelled.
func (s *Session) Start(ctx context.Context) error {
	if err := s.Resync(ctx); err != nil {
		return err
	}

	return s.source.Receive(ctx, s.handle)
}

func (s *Session) handle(ctx context.Context, msg SourceMessage) {
	m, err := event.Parse(msg.Data())
	if err != nil {
		// A payload this client cannot understand never will be understood;
		// ack it away rather than poisoning the subscription.
		s.logger.LogWarn(ctx, "Discarding malformed event.", logwrap.Err(err))
		msg.Ack()
		return
	}

	if event.IsInvalidThermostatUpdate(m) {
		s.logger.LogDebug(ctx, "Discarding known-bad thermostat update, refreshing from REST.",
			logwrap.Datum("resource", m.Resource))
		s.ackAfterResync(ctx, msg)
		return
	}

	err = s.applier.Apply(ctx, m)

	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, event.ErrStaleState):
		s.logger.LogInfo(ctx, "Registry out of sync, performing full re-sync.",
			logwrap.Datum("resource", m.Resource))
		s.ackAfterResync(ctx, msg)
	default:
		s.logger.LogError(ctx, "Failed to apply event, requesting redelivery.",
			logwrap.Datum("eventId", m.ID), logwrap.Err(err))
		msg.Nack()
	}
}

// ackAfterResync acks the triggering message only once the registry has been
// rebuilt, so a failed re-sync leaves the message eligible for redelivery.
func (s *Session) ackAfterResync(ctx context.Context, msg SourceMessage) {
	if err := s.Resync(ctx); err != nil {
		s.logger.LogError(ctx, "Re-sync failed, requesting redelivery.", logwrap.Err(err))
		msg.Nack()
		return
	}

	msg.Ack()
}
