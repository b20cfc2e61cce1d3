package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bce-iot/shadow-go/pkg/shadow"
)

var (
	flagSet        []string
	flagTimeoutSec uint8
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Report new state for a device's shadow",
	Long: `Update publishes reported state and waits for the cloud's
accept/reject response.

Example:
  shadowctl update --device lamp-01 --set on=true --set brightness=80`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringArrayVar(&flagSet, "set", nil, "key=value pair to report (repeatable)")
	updateCmd.Flags().Uint8Var(&flagTimeoutSec, "timeout", 10, "seconds to wait for a response")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := resolvedConfig()
	if err != nil {
		return err
	}
	reported, err := parseSetFlags(flagSet)
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
	if err := client.Update(ctx, reported, func(_ shadow.Action, ack shadow.Ack, _ any) {
		done <- ack
	}, nil, flagTimeoutSec); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	select {
	case ack := <-done:
		return printAck("update", ack)
	case <-ctx.Done():
		return fmt.Errorf("update: %w", ctx.Err())
	}
}

// parseSetFlags turns ["on=true", "brightness=80"] into a map, with values
// interpreted as JSON scalars when possible (so "80" becomes a number and
// "true" becomes a bool), falling back to a plain string otherwise.
func parseSetFlags(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: expected key=value", pair)
		}
		out[key] = parseScalar(value)
	}
	return out, nil
}

func parseScalar(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func printAck(op string, ack shadow.Ack) error {
	switch ack.Status {
	case shadow.StatusAccepted:
		doc, _ := json.MarshalIndent(ack.Document, "", "  ")
		fmt.Printf("%s accepted:\n%s\n", op, doc)
		return nil
	case shadow.StatusRejected:
		return fmt.Errorf("%s rejected: %s: %s", op, ack.Code, ack.Message)
	default:
		return fmt.Errorf("%s timed out waiting for a response", op)
	}
}
