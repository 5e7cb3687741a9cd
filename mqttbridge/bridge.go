package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/willowbee/nestsdm/state"
)

type Publisher func(ctx context.Context, topic string, payload []byte) error

func EmptyPublisher(ctx context.Context, topic string, payload []byte) error {
	return nil
}

const DefaultPublishDuration = 2 * time.Second

// Bridge mirrors registry changes onto an MQTT broker, one retained topic per
// device trait: devices/{id}/traits/{trait}. Deletion publishes an empty
// tombstone payload to the device's topic subtree root.
type Bridge struct {
	Registry *state.Registry
	Logger   logwrap.Logger

	PublishStateOnConnect bool

	lock        sync.Mutex
	publisher   Publisher
	unsubscribe func()
}

// Start attaches the bridge to the registry. Publishing is a no-op until
// Connected supplies a publisher.
func (b *Bridge) Start() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.publisher == nil {
		b.publisher = EmptyPublisher
	}

	if b.unsubscribe == nil {
		b.unsubscribe = b.Registry.Subscribe(b.handleChange)
	}
}

// Stop detaches the bridge from the registry.
func (b *Bridge) Stop() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

func (b *Bridge) Connected(ctx context.Context, publisher Publisher) error {
	b.lock.Lock()
	b.publisher = publisher
	b.lock.Unlock()

	if b.PublishStateOnConnect {
		b.Logger.LogInfo(ctx, "MQTT connected, publishing current state of all devices.")
		go b.publishAll()
	}

	return nil
}

func (b *Bridge) Disconnected() {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.publisher = EmptyPublisher
}

func (b *Bridge) currentPublisher() Publisher {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.publisher == nil {
		return EmptyPublisher
	}

	return b.publisher
}

func (b *Bridge) publishAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, device := range b.Registry.Devices() {
		b.publishDeviceTraits(ctx, device, device.Traits.Names())
	}
}

func (b *Bridge) handleChange(c state.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultPublishDuration)
	defer cancel()

	switch c.Kind {
	case state.ChangeDeleted:
		b.publish(ctx, deviceTopic(c.Resource), nil)
	case state.ChangeCreated:
		device, err := b.Registry.Device(c.Resource)
		if err != nil {
			return
		}

		b.publishDeviceTraits(ctx, device, device.Traits.Names())
	case state.ChangeUpdated:
		device, err := b.Registry.Device(c.Resource)
		if err != nil {
			return
		}

		b.publishDeviceTraits(ctx, device, c.Traits)
	case state.ChangeRelation:
		device, err := b.Registry.Device(c.Resource)
		if err != nil {
			return
		}

		b.publishRelations(ctx, device)
	}
}

func (b *Bridge) publishDeviceTraits(ctx context.Context, device state.Device, traits []string) {
	deviceCtx := b.Logger.AddOptionsToContext(ctx, logwrap.Datum("device", device.Name))

	for _, name := range traits {
		fields, found := device.Traits[name]
		if !found {
			continue
		}

		payload, err := json.Marshal(fields)
		if err != nil {
			b.Logger.LogError(deviceCtx, "Failed to marshal trait payload.", logwrap.Datum("trait", name), logwrap.Err(err))
			continue
		}

		topic := fmt.Sprintf("%s/traits/%s", deviceTopic(device.Name), name)
		b.publish(deviceCtx, topic, payload)
	}
}

func (b *Bridge) publishRelations(ctx context.Context, device state.Device) {
	payload, err := json.Marshal(device.Relations)
	if err != nil {
		b.Logger.LogError(ctx, "Failed to marshal relations payload.", logwrap.Datum("device", device.Name), logwrap.Err(err))
		return
	}

	b.publish(ctx, fmt.Sprintf("%s/relations", deviceTopic(device.Name)), payload)
}

func (b *Bridge) publish(ctx context.Context, topic string, payload []byte) {
	if err := b.currentPublisher()(ctx, topic, payload); err != nil {
		b.Logger.LogError(ctx, "Failed to publish to MQTT.", logwrap.Datum("topic", topic), logwrap.Err(err))
	}
}

func deviceTopic(resourceName string) string {
	return fmt.Sprintf("devices/%s", path.Base(resourceName))
}
