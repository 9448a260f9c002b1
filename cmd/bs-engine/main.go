package main

import (
	"BehaviorSpectra/internal/api"
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/engine/detector"
	_ "BehaviorSpectra/internal/engine/impl/anomaly" // Registers anomaly writers
	"BehaviorSpectra/internal/engine/manager"
	"BehaviorSpectra/internal/engine/stream"
	"BehaviorSpectra/internal/factory"
	"BehaviorSpectra/internal/query"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	log.Println("Starting bs-engine...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Build the detector, the writers and the manager
	det, err := detector.New(cfg.CountMinSketch)
	if err != nil {
		log.Fatalf("Failed to create detector: %v", err)
	}
	writers := factory.CreateWriters(cfg)
	log.Printf("%d anomaly writers configured (available types: %v).", len(writers), factory.WriterTypes())

	mgr := manager.NewManager(cfg, det, writers)
	mgr.Start()

	// 3. Subscribe to the event stream
	var events *stream.Stream
	if cfg.Probe.NATSURL != "" {
		events = stream.New(cfg.Probe, mgr)
		if err := events.Start(); err != nil {
			mgr.Stop()
			log.Fatalf("Failed to start event stream: %v", err)
		}
	} else {
		log.Println("Warning: probe.nats_url is not set, events are only accepted through the API.")
	}

	// 4. Serve the API until a shutdown signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg.API, mgr, newQuerier(cfg), *configPath); err != nil {
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutdown signal received, stopping engine...")
	if events != nil {
		events.Stop()
	}
	mgr.Stop()
	log.Println("Shutdown complete.")
}

// serve runs the HTTP and gRPC servers until ctx is done or one of them fails.
func serve(ctx context.Context, cfg config.APIConfig, mgr *manager.Manager, querier query.Querier, configPath string) error {
	var lis net.Listener
	if cfg.GRPCAddr != "" {
		var err error
		if lis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	grpcServer, health := api.NewGRPCServer()
	if lis != nil {
		g.Go(func() error {
			log.Printf("gRPC health server starting on %s", cfg.GRPCAddr)
			return grpcServer.Serve(lis)
		})
	}

	var httpServer *http.Server
	if cfg.ListenAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           api.NewRouter(mgr, querier, configPath),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Printf("API server starting on %s", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("could not listen on %s: %w", httpServer.Addr, err)
			}
			return nil
		})
	}

	api.SetServing(health, true)

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Servers shutting down...")
		api.SetServing(health, false)
		grpcServer.GracefulStop()
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
		}
		return nil
	})

	return g.Wait()
}

// newQuerier connects to the first enabled ClickHouse writer's database, if any.
func newQuerier(cfg *config.Config) query.Querier {
	for _, def := range cfg.Writers {
		if !def.Enabled || def.Type != "clickhouse" {
			continue
		}
		querier, err := query.NewClickHouseQuerier(def.ClickHouse)
		if err != nil {
			log.Printf("Warning: anomaly history unavailable: %v", err)
			return nil
		}
		return querier
	}
	return nil
}
