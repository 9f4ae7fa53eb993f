package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/blacktop/metapost/cmd"
	"github.com/blacktop/metapost/internal/logutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		logutil.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
