package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/perimetric/traceline/internal/infrastructure/config"
	"github.com/perimetric/traceline/internal/infrastructure/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides config)")
	sampleRate := flag.Float64("sample-rate", -1, "Trace sample rate in [0,1] (overrides config)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *sampleRate >= 0 {
		cfg.Tracing.SampleRate = *sampleRate
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
