package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bce-iot/shadow-go/cmd/shadowctl/internal/config"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Save connection settings and verify the broker is reachable",
	Long: `Connect dials the configured (or flag-provided) broker, subscribes
to the device's shadow topics, then exits. Settings given via --mqtt and
--device are persisted for subsequent commands.`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&flagUsername, "username", "", "MQTT username")
	connectCmd.Flags().StringVar(&flagPassword, "password", "", "MQTT password")
}

var (
	flagUsername string
	flagPassword string
)

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := resolvedConfig()
	if err != nil {
		return err
	}
	if flagUsername != "" {
		cfg.Username = flagUsername
	}
	if flagPassword != "" {
		cfg.Password = flagPassword
	}

	client, err := dialClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer client.Destroy()

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("connected to %s as %s\n", cfg.MQTTURL, cfg.DeviceName)
	return nil
}
