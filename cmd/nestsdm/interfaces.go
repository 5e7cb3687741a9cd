package main

import (
	"context"
	"fmt"
	"net/http"
	url2 "net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/shimmeringbee/logwrap"

	"github.com/willowbee/nestsdm/config"
	"github.com/willowbee/nestsdm/httpapi"
	"github.com/willowbee/nestsdm/mqttbridge"
	"github.com/willowbee/nestsdm/state"
)

const DefaultMQTTEventDuration = 5 * time.Second

type StartedInterface struct {
	Name     string
	Shutdown func() error
}

func startInterfaces(cfgs map[string]config.InterfaceConfig, registry *state.Registry, l logwrap.Logger) ([]StartedInterface, error) {
	var started []StartedInterface

	for name, cfg := range cfgs {
		intfLogger := l
		intfLogger.AddOptionsToLogger(logwrap.Source(name))

		var shutdown func() error
		var err error

		switch intfCfg := cfg.Config.(type) {
		case *config.HTTPInterfaceConfig:
			shutdown, err = startHTTPInterface(*intfCfg, registry, intfLogger)
		case *config.MQTTInterfaceConfig:
			shutdown, err = startMQTTInterface(*intfCfg, registry, intfLogger)
		default:
			err = fmt.Errorf("unknown interface configuration type: %s", cfg.Type)
		}

		if err != nil {
			return started, fmt.Errorf("failed to start interface '%s': %w", name, err)
		}

		started = append(started, StartedInterface{Name: name, Shutdown: shutdown})
	}

	return started, nil
}

func startHTTPInterface(cfg config.HTTPInterfaceConfig, registry *state.Registry, l logwrap.Logger) (func() error, error) {
	router := httpapi.ConstructRouter(registry, l, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.LogError(context.Background(), "HTTP interface failed.", logwrap.Err(err))
		}
	}()

	l.LogInfo(context.Background(), "HTTP interface listening.", logwrap.Datum("port", cfg.Port))

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(ctx)
	}, nil
}

func startMQTTInterface(cfg config.MQTTInterfaceConfig, registry *state.Registry, l logwrap.Logger) (func() error, error) {
	clientId := fmt.Sprintf("nestsdm-%s", uuid.New().String())

	l.LogInfo(context.Background(), "Constructing new MQTT client.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server))

	clientOptions := pahomqtt.NewClientOptions()
	clientOptions.ClientID = clientId

	if url, err := url2.Parse(cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to parse MQTT server URL: %w", err)
	} else {
		clientOptions.Servers = []*url2.URL{url}
	}

	bridge := &mqttbridge.Bridge{
		Registry:              registry,
		Logger:                l,
		PublishStateOnConnect: cfg.PublishStateOnConnect,
	}
	bridge.Start()

	clientOptions.OnConnect = func(client pahomqtt.Client) {
		l.LogInfo(context.Background(), "MQTT client successfully connected.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server))

		if err := bridge.Connected(context.Background(), func(ctx context.Context, topic string, payload []byte) error {
			prefixedTopic := prefixTopic(cfg.TopicPrefix, topic)

			token := client.Publish(prefixedTopic, cfg.QOS, cfg.Retained, payload)
			if err := awaitToken(ctx, token); err != nil {
				l.LogError(ctx, "Failed to publish message to MQTT.", logwrap.Datum("topic", prefixedTopic), logwrap.Err(err))
				return err
			}

			return nil
		}); err != nil {
			l.LogError(context.Background(), "Failed to execute connection handler in MQTT bridge.", logwrap.Err(err))
		}
	}

	clientOptions.SetConnectionLostHandler(func(client pahomqtt.Client, err error) {
		l.LogInfo(context.Background(), "MQTT client disconnected.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server), logwrap.Err(err))
		bridge.Disconnected()
	})

	if cfg.Credentials != nil {
		clientOptions.SetUsername(cfg.Credentials.Username)
		clientOptions.SetPassword(cfg.Credentials.Password)
	}

	client := pahomqtt.NewClient(clientOptions)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultMQTTEventDuration)
	defer cancel()

	if err := awaitToken(ctx, client.Connect()); err != nil {
		bridge.Stop()
		return nil, fmt.Errorf("failed to connect to MQTT server: %w", err)
	}

	return func() error {
		bridge.Stop()
		client.Disconnect(250)
		return nil
	}, nil
}

func awaitToken(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func prefixTopic(prefix string, topic string) string {
	if prefix == "" {
		return topic
	}

	return fmt.Sprintf("%s/%s", prefix, topic)
}
