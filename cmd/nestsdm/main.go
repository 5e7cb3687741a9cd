package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterbourgon/ff/v3"
	lw "github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"golang.org/x/oauth2"
	"github.com/willowbee/nestsdm/api"
	"github.com/willowbee/nestsdm/auth"
	"github.com/willowbee/nestsdm/config"
	"github.com/willowbee/nestsdm/state"
	"github.com/willowbee/nestsdm/subscriber"
)

func main() {
	ctx := context.Background()
	l := lw.New(golog.Wrap(log.New(os.Stderr, "", log.LstdFlags)))

	fs := flag.NewFlagSet("nestsdm", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigFile(ctx, l), "location of configuration file")

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarNoPrefix()); err != nil {
		l.LogFatal(ctx, "Failed to parse environment/command line arguments.", lw.Err(err))
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		l.LogFatal(ctx, "Failed to load configuration.", lw.Err(err))
	}

	l, err = configureLogging(cfg.Logging, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to configure logging.", lw.Err(err))
	}

	command := fs.Arg(0)
	args := fs.Args()
	if len(args) > 0 {
		args = args[1:]
	}

	oauthCfg := auth.Config(cfg.Session.ClientID, cfg.Session.ClientSecret, cfg.Session.ProjectID)

	if command == "authorize" {
		if err := authorize(ctx, oauthCfg, cfg.Session.TokenFile); err != nil {
			l.LogFatal(ctx, "Authorization failed.", lw.Err(err))
		}
		return
	}

	token, err := auth.LoadToken(cfg.Session.TokenFile)
	if err != nil {
		l.LogFatal(ctx, "Failed to load cached token.", lw.Err(err))
	}

	if token == nil {
		l.LogFatal(ctx, "No cached token found, run 'nestsdm authorize' first.")
	}

	ts := auth.CachedTokenSource(ctx, oauthCfg, cfg.Session.TokenFile, token)
	apiClient := api.NewClient(oauth2.NewClient(ctx, ts), api.DefaultBaseURL, cfg.Session.ProjectID, l)

	switch command {
	case "devices":
		devices, err := apiClient.Devices(ctx)
		if err != nil {
			l.LogFatal(ctx, "Failed to list devices.", lw.Err(err))
		}
		printJSON(ctx, l, devices)
	case "device":
		requireArgs(ctx, l, args, 1, "device <device>")

		device, err := apiClient.Device(ctx, deviceName(cfg.Session.ProjectID, args[0]))
		if err != nil {
			l.LogFatal(ctx, "Failed to get device.", lw.Err(err))
		}
		printJSON(ctx, l, device)
	case "structures":
		structures, err := apiClient.Structures(ctx)
		if err != nil {
			l.LogFatal(ctx, "Failed to list structures.", lw.Err(err))
		}
		printJSON(ctx, l, structures)
	case "set-mode":
		requireArgs(ctx, l, args, 2, "set-mode <device> <mode>")

		if err := apiClient.SetThermostatMode(ctx, deviceName(cfg.Session.ProjectID, args[0]), args[1]); err != nil {
			l.LogFatal(ctx, "Failed to set thermostat mode.", lw.Err(err))
		}
	case "set-heat":
		requireArgs(ctx, l, args, 2, "set-heat <device> <celsius>")

		if err := apiClient.SetHeat(ctx, deviceName(cfg.Session.ProjectID, args[0]), parseCelsius(ctx, l, args[1])); err != nil {
			l.LogFatal(ctx, "Failed to set heating setpoint.", lw.Err(err))
		}
	case "set-cool":
		requireArgs(ctx, l, args, 2, "set-cool <device> <celsius>")

		if err := apiClient.SetCool(ctx, deviceName(cfg.Session.ProjectID, args[0]), parseCelsius(ctx, l, args[1])); err != nil {
			l.LogFatal(ctx, "Failed to set cooling setpoint.", lw.Err(err))
		}
	case "set-range":
		requireArgs(ctx, l, args, 3, "set-range <device> <heat> <cool>")

		if err := apiClient.SetRange(ctx, deviceName(cfg.Session.ProjectID, args[0]), parseCelsius(ctx, l, args[1]), parseCelsius(ctx, l, args[2])); err != nil {
			l.LogFatal(ctx, "Failed to set setpoint range.", lw.Err(err))
		}
	case "watch":
		if err := watch(ctx, cfg, apiClient, ts, l); err != nil {
			l.LogFatal(ctx, "Watch failed.", lw.Err(err))
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: nestsdm [flags] <authorize|devices|device|structures|set-mode|set-heat|set-cool|set-range|watch>")
		os.Exit(2)
	}
}

func watch(ctx context.Context, cfg config.Config, apiClient *api.Client, ts oauth2.TokenSource, l lw.Logger) error {
	source, err := subscriber.NewPubSubSource(ctx, cfg.Session.Subscription, ts)
	if err != nil {
		return err
	}

	session := subscriber.NewSession(apiClient, source, l)

	stopPrinting := session.Registry().Subscribe(func(c state.Change) {
		fmt.Printf("%s %s", c.Kind, c.Resource)
		if len(c.Traits) > 0 {
			fmt.Printf(" (%s)", strings.Join(c.Traits, ", "))
		}
		fmt.Println()
	})
	defer stopPrinting()

	l.LogInfo(ctx, "Starting interfaces.")
	startedInterfaces, err := startInterfaces(cfg.Interfaces, session.Registry(), l)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	l.LogInfo(ctx, "Watching for device changes.", lw.Datum("subscription", cfg.Session.Subscription))
	err = session.Start(runCtx)

	for _, intf := range startedInterfaces {
		l.LogInfo(ctx, "Shutting down interface.", lw.Datum("interface", intf.Name))

		if shutdownErr := intf.Shutdown(); shutdownErr != nil {
			l.LogError(ctx, "Failed to shutdown interface.", lw.Err(shutdownErr), lw.Datum("interface", intf.Name))
		}
	}

	return err
}

func authorize(ctx context.Context, oauthCfg *oauth2.Config, tokenFile string) error {
	url := oauthCfg.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Printf("Visit the following URL to authorize this client:\n\n  %s\n\nEnter authorization code: ", url)

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := oauthCfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := auth.SaveToken(tokenFile, token); err != nil {
		return err
	}

	fmt.Println("Authorization complete.")

	return nil
}

// deviceName expands a bare device id to a full resource name.
func deviceName(projectID string, id string) string {
	if strings.Contains(id, "/") {
		return id
	}

	return fmt.Sprintf("enterprises/%s/devices/%s", projectID, id)
}

func parseCelsius(ctx context.Context, l lw.Logger, value string) float64 {
	celsius, err := strconv.ParseFloat(value, 64)
	if err != nil {
		l.LogFatal(ctx, "Failed to parse temperature.", lw.Datum("value", value), lw.Err(err))
	}

	return celsius
}

func requireArgs(ctx context.Context, l lw.Logger, args []string, count int, usage string) {
	if len(args) < count {
		l.LogFatal(ctx, "Missing arguments.", lw.Datum("usage", usage))
	}
}

func printJSON(ctx context.Context, l lw.Logger, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		l.LogFatal(ctx, "Failed to marshal output.", lw.Err(err))
	}

	fmt.Println(string(data))
}

func defaultConfigFile(ctx context.Context, l lw.Logger) string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		l.LogFatal(ctx, "Failed to determine user configuration directory.", lw.Err(err))
	}

	return filepath.Join(configDir, "nestsdm", "config.json")
}
