package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/offlinefirst/deskrec/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cmd.NewRootCommand()
	if err := root.Execute(ctx, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}
