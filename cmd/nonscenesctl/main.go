// Package main runs the nonscenes admin command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	ctlcmd "github.com/nonxedy/nonscenes/internal/cmd/nonscenesctl"
	"github.com/nonxedy/nonscenes/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctlcmd.Execute(ctx, os.Args[1:], os.Stdout); err != nil {
		stop()
		config.Exitf("nonscenesctl: %v", err)
	}
}
