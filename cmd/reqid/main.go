// reqid requests identifiers from a reqidd server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reqid/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteClient(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "reqid: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
