// Command edgesim serves the planning pipeline and the run store over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/opticam-labs/edgesim/internal/api"
	"github.com/opticam-labs/edgesim/internal/cam/storage/sqlite"
	"github.com/opticam-labs/edgesim/internal/config"
	"github.com/opticam-labs/edgesim/internal/monitoring"
	"github.com/opticam-labs/edgesim/internal/units"
	"github.com/opticam-labs/edgesim/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	dbFile        = flag.String("db", "edgesim_runs.db", "Path to the SQLite run database")
	machineConfig = flag.String("machine-config", "", "Path to a machine config JSON file (default: reference machine)")
	rateUnits     = flag.String("units", units.MM3PS, "Removal-rate units for API responses (mm3ps, cm3pm, mm3pm)")
	debug         = flag.Bool("debug", false, "Enable verbose diagnostic logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("edgesim %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValidRate(*rateUnits) {
		log.Fatalf("Invalid units %q; valid values: %s", *rateUnits, units.RateUnitsString())
	}
	monitoring.Debug = *debug

	machine := config.Default()
	if *machineConfig != "" {
		m, err := config.Load(*machineConfig)
		if err != nil {
			log.Fatalf("Failed to load machine config: %v", err)
		}
		machine = m
	}

	store, err := sqlite.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := api.NewServer(store, machine, *rateUnits).ServeMux()
	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		log.Printf("edgesim API listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
