package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arcline/maestro/app/maestro"
	"github.com/arcline/maestro/pkg/metadata"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Controllers are registered by embedding applications; the bare
	// binary runs as a client-only deployment.
	store := metadata.NewMapStore()
	provider := metadata.StaticProvider(nil)

	app, err := maestro.Initialize(ctx, store, provider)
	if err != nil {
		os.Exit(1)
	}

	app.Start(ctx)
}
