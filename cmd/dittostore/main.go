package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittostore/cmd/dittostore/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
