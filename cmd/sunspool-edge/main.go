package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sunspool/sunspool/internal/config"
	"github.com/sunspool/sunspool/internal/daemon"
	"github.com/sunspool/sunspool/internal/health"
	"github.com/sunspool/sunspool/internal/registers"
	"github.com/sunspool/sunspool/internal/spool"
)

func main() {
	// 1. Load and validate environment config
	cfg, err := config.LoadEdgeConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	cfg.LogSummary()

	// 2. Register map: built-in default unless an override file is set
	regmap := registers.Default()
	if cfg.RegisterMapPath != "" {
		regmap, err = registers.Load(cfg.RegisterMapPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: register map %s: %v\n", cfg.RegisterMapPath, err)
			os.Exit(1)
		}
		log.Printf("[edge] loaded register map override from %s", cfg.RegisterMapPath)
	}
	if err := regmap.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// 3. Durable spool
	sp, err := spool.Open(cfg.SpoolPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer sp.Close()
	if n, err := sp.Count(); err == nil && n > 0 {
		log.Printf("[edge] spool holds %d samples from a previous run", n)
	}

	// 4. Start the poll and upload loops
	d := daemon.New(cfg, regmap, sp, health.NewWriter(cfg.HealthPath))
	d.Start()

	// 5. Graceful shutdown with a final drain attempt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down...", sig)

	d.Stop()
	log.Println("Edge daemon stopped")
}
