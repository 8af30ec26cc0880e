package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pulse.report/internal/api"
	"github.com/banshee-data/pulse.report/internal/config"
	"github.com/banshee-data/pulse.report/internal/db"
	"github.com/banshee-data/pulse.report/internal/ppg"
	"github.com/banshee-data/pulse.report/internal/session"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "vitals.db", "Path to the sqlite database")
	configPath = flag.String("config", "", "Optional tuning config JSON")
	migrations = flag.String("migrations", "migrations", "Path to migration files")
	replayPath = flag.String("replay", "", "Replay a recorded PPG log instead of generating a synthetic one")
	age        = flag.Float64("age", 0, "Subject age in years (overrides config)")
	notes      = flag.String("notes", "", "Free-form notes stored with the session")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		log.Printf("loaded tuning config from %s", *configPath)
	}
	if *age > 0 {
		cfg.SubjectAgeYears = age
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	if _, statErr := os.Stat(*migrations); statErr == nil {
		if err := store.MigrateUp(*migrations); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	var source session.SampleSource
	if *replayPath != "" {
		replay, err := session.LoadReplay(*replayPath)
		if err != nil {
			log.Fatalf("failed to load replay log: %v", err)
		}
		log.Printf("replaying %s (%d samples per pass)", *replayPath, replay.Len())
		source = replay
	} else {
		log.Print("no replay log given, generating a synthetic pulse")
		source = ppg.NewSyntheticSource()
	}

	runner := session.NewRunner(session.RunnerConfig{
		Pipeline:   cfg.PipelineConfig(),
		Store:      store,
		Decimation: cfg.GetSnapshotDecimation(),
		SubjectAge: cfg.GetSubjectAge(),
		Notes:      *notes,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitoring session: source -> pipeline -> store
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx, source); err != nil {
			log.Printf("session ended with error: %v", err)
		}
		log.Print("session routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := api.NewServer(runner.Pipeline(), store, cfg).ServeMux()
		mux.Handle("/", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LogRequests(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("listening on %s", *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
