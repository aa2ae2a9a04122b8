// The main package for the barcrawl executable.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JakeFAU/bar-directory-crawler/cmd"
	"github.com/JakeFAU/bar-directory-crawler/internal/logging"
)

func main() {
	logging.MarkStart(time.Now())
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
