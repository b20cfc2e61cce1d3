package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print every desired-state delta as it arrives",
	Long: `Watch connects and registers a handler for the whole desired
object, printing every delta the cloud pushes until interrupted.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := resolvedConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := dialClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Destroy()

	err = client.RegisterDelta("", func(_ string, value any) (string, string) {
		doc, _ := json.MarshalIndent(value, "", "  ")
		fmt.Printf("delta:\n%s\n", doc)
		return "", ""
	})
	if err != nil {
		return fmt.Errorf("registerDelta: %w", err)
	}

	fmt.Printf("watching %s on %s, press Ctrl+C to stop\n", cfg.DeviceName, cfg.MQTTURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}
