package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bce-iot/shadow-go/pkg/shadow"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a device's shadow document",
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().Uint8Var(&flagTimeoutSec, "timeout", 10, "seconds to wait for a response")
}

func runDelete(cmd *cobra.Command, args []string) error {
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
	if err := client.Delete(ctx, func(_ shadow.Action, ack shadow.Ack, _ any) {
		done <- ack
	}, nil, flagTimeoutSec); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	select {
	case ack := <-done:
		return printAck("delete", ack)
	case <-ctx.Done():
		return fmt.Errorf("delete: %w", ctx.Err())
	}
}
