package main

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/model"
	"BehaviorSpectra/internal/probe"
	"BehaviorSpectra/pkg/pcap"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	capture := flag.String("pcap", "", "Capture file to replay as network events (required).")
	flag.Parse()

	if *capture == "" {
		log.Println("Error: -pcap flag is required.")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Starting bs-probe, replaying %s to '%s'", *capture, cfg.Probe.Subject)

	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}
	defer pub.Close()

	reader, err := pcap.NewReader(*capture)
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan *model.Event, 1024)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := reader.ReadEvents(gctx, events)
		log.Printf("Decoded %d network events from the capture.", n)
		return err
	})
	g.Go(func() error {
		published := 0
		for evt := range events {
			if err := pub.Publish(evt); err != nil {
				log.Printf("Error publishing %s event: %v", evt.Type, err)
				continue
			}
			published++
		}
		log.Printf("Published %d events.", published)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Printf("Probe stopped with error: %v", err)
	}
	log.Println("Probe finished.")
}
