package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ha-testbed/harness/internal/domain"
	"github.com/ha-testbed/harness/internal/harness"
	"github.com/ha-testbed/harness/internal/harness/api"
)

// Standing up the environment interactively is useful when developing automations:
// the containers stay running and the harness exposes its control API and metrics
// until interrupted.
func main() {
	conf := domain.GetDefaultConfig()
	conf.CheckUsage()

	// Load ENV from .env file, if one exists. Optional for the harness.
	if _, err := os.Stat(".env"); err == nil {
		if err = godotenv.Load(".env"); err != nil {
			log.Fatalf("Failed to load environment file \".env\": %v", err)
		}
	}

	session, err := harness.NewSession(conf)
	if err != nil {
		log.Fatalf("Failed to start harness session: %v", err)
	}

	atom := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if conf.Debug || conf.Verbose {
		atom.SetLevel(zapcore.DebugLevel)
	}

	server := api.NewServer(session, conf.PrometheusEndpoint, &atom)
	go func() {
		if err := server.Serve(fmt.Sprintf(":%d", conf.ApiPort)); err != nil {
			log.Printf("Harness API server exited: %v", err)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	if err := session.Close(); err != nil {
		log.Fatalf("Failed to tear down harness session: %v", err)
	}
}
