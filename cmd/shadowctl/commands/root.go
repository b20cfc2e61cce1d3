// Package commands implements the shadowctl command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bce-iot/shadow-go/cmd/shadowctl/internal/config"
	"github.com/bce-iot/shadow-go/pkg/shadow"
	"github.com/bce-iot/shadow-go/pkg/shadowmqtt"
)

var (
	verbose bool

	globalConfig  *config.Config
	configLoadErr error

	flagMQTTURL    string
	flagDeviceName string
)

var rootCmd = &cobra.Command{
	Use:   "shadowctl",
	Short: "Command line client for the device shadow service",
	Long: `shadowctl - a command line client for the device shadow service.

A shadow mirrors a device's desired and reported state through an MQTT
broker, even while the device is offline.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/shadowctl/
  Linux:   ~/.config/shadowctl/
  Windows: %AppData%/shadowctl/

Examples:
  shadowctl connect --device lamp-01 --mqtt tcp://localhost:1883
  shadowctl update --device lamp-01 --set on=true
  shadowctl get --device lamp-01
  shadowctl watch --device lamp-01`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&flagMQTTURL, "mqtt", "", "MQTT broker URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagDeviceName, "device", "", "device name (overrides config)")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(watchCmd)
}

func initConfig() {
	cfg, err := config.Load()
	if err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// resolvedConfig returns the loaded config with command-line overrides
// applied.
func resolvedConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}

	cfg := *globalConfig
	if flagMQTTURL != "" {
		cfg.MQTTURL = flagMQTTURL
	}
	if flagDeviceName != "" {
		cfg.DeviceName = flagDeviceName
	}
	if cfg.DeviceName == "" {
		return nil, fmt.Errorf("device name is required; pass --device or set one with 'shadowctl connect'")
	}
	return &cfg, nil
}

func isVerbose() bool { return verbose }

// dialClient connects a shadow client over a real shadowmqtt transport for
// cfg's device, logging at debug level when --verbose is set.
func dialClient(ctx context.Context, cfg *config.Config) (*shadow.Client, error) {
	level := slog.LevelInfo
	if isVerbose() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var opts []shadowmqtt.Option
	if cfg.Username != "" {
		opts = append(opts, shadowmqtt.WithCredentials(cfg.Username, cfg.Password))
	}
	opts = append(opts,
		shadowmqtt.WithLogger(logger),
		shadowmqtt.WithKeepAlive(cfg.KeepAliveSec),
		shadowmqtt.WithConnectTimeout(time.Duration(cfg.ConnectTimeoutSec)*time.Second),
		shadowmqtt.WithSubscribeTimeout(time.Duration(cfg.SubscribeTimeoutSec)*time.Second),
	)

	transport := shadowmqtt.New(cfg.MQTTURL, opts...)
	client := shadow.New(transport, cfg.DeviceName,
		shadow.WithLogger(logger),
		shadow.WithQoS(byte(cfg.QoS)),
		shadow.WithRegistry(shadow.NewRegistry(cfg.MaxClient)),
		shadow.WithMaxInFlight(cfg.MaxInFlight),
		shadow.WithMaxDeltaHandlers(cfg.MaxDeltaHandlers),
		shadow.WithSubscribeTimeout(time.Duration(cfg.SubscribeTimeoutSec)*time.Second),
	)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.MQTTURL, err)
	}
	return client, nil
}
