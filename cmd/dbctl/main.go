// Command dbctl applies and inspects the dblayer schema.
//
//	dbctl migrate [--wait 30s]
//	dbctl status [--json]
//	dbctl sessions prune
//	dbctl version
//
// Connection settings come from UWECECA_* variables (or .env).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/uwececa/dblayer/internal/config"
	"github.com/uwececa/dblayer/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd().ExecuteContext(ctx); err != nil {
		log := logger.NewLogger("error", config.IsProduction())
		log.Error().Err(err).Msg("dbctl failed")
		stop()
		os.Exit(1)
	}
}
