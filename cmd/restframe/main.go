// Command restframe recomputes rest-frame B-meson observables in ntuples,
// with optional flight-direction smearing and variation weights.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("restframe: %v", err)
	}
}
