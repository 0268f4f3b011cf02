// Command pipelineserver serves the pipeline's thin HTTP control plane:
// submit a chapter or batch translation job over HTTP and poll its
// status. All wiring lives in internal/app.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toonrelay/pipeline/internal/app"
	"github.com/toonrelay/pipeline/internal/config"
	transport "github.com/toonrelay/pipeline/internal/http"
	"github.com/toonrelay/pipeline/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.ParseLevel(cfg.LogLevel))

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("wire app: %v", err)
	}
	defer a.Close()

	handler := transport.NewHandler(a.Pipeline, a.Orchestrator, a.Jobs, a.Settings)
	router := transport.NewRouter(handler)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down", "module", "main", "action", "shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := router.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "module", "main", "action", "shutdown", "result", "error", "error", err)
		}
	}()

	fmt.Printf("%s %s listening on %s\n", config.AppName, config.AppVersion, cfg.Addr)
	if err := router.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("start server: %v", err)
	}
	logger.Info("server stopped", "module", "main", "action", "shutdown", "result", "ok")
}
