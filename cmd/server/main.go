package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vitrinehq/vitrine/internal/infrastructure/config"
	"github.com/vitrinehq/vitrine/internal/infrastructure/server"
)

func main() {
	port := flag.String("port", "", "listen port (overrides PORT)")
	dev := flag.Bool("dev", false, "development mode: colored logs, debug level")
	policy := flag.String("policy", "", "security policy file (overrides SECURITY_POLICY_PATH)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *policy != "" {
		cfg.Security.PolicyPath = *policy
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
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
		if err := srv.Close(); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
	case err := <-errChan:
		srv.Close()
		log.Fatalf("server error: %v", err)
	}
}
