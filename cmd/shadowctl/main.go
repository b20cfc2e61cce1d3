// Command shadowctl is a command line client for the device shadow service.
package main

import (
	"fmt"
	"os"

	"github.com/bce-iot/shadow-go/cmd/shadowctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shadowctl:", err)
		os.Exit(1)
	}
}
