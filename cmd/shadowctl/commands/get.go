package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bce-iot/shadow-go/pkg/shadow"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a device's current shadow document",
	RunE:  runGet,
}

func init() {
	getCmd.Flags().Uint8Var(&flagTimeoutSec, "timeout", 10, "seconds to wait for a response")
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := resolvedConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(flagTimeoutSec+2)*time.Second)
	defer cancel()

	client, err := dialClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Destroy()

	done := make(chan shadow.Ack, 1)
	if err := client.Get(ctx, func(_ shadow.Action, ack shadow.Ack, _ any) {
		done <- ack
	}, nil, flagTimeoutSec); err != nil {
		return fmt.Errorf("get: %w", err)
	}

	select {
	case ack := <-done:
		return printAck("get", ack)
	case <-ctx.Done():
		return fmt.Errorf("get: %w", ctx.Err())
	}
}
