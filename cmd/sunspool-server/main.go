package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sunspool/sunspool/internal/api"
	"github.com/sunspool/sunspool/internal/auth"
	"github.com/sunspool/sunspool/internal/cache"
	"github.com/sunspool/sunspool/internal/config"
	"github.com/sunspool/sunspool/internal/store"
)

func main() {
	// 1. Load and validate environment config
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// 2. Token registry, with a strength warning for guessable tokens
	registry, err := auth.ParseDeviceTokens(cfg.DeviceTokens)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	for _, token := range registry.Tokens() {
		if config.IsWeakToken(token) {
			log.Printf("[server] warning: weak device token configured (token %s); rotate it", config.MaskToken(token))
		}
	}

	ctx := context.Background()

	// 3. Database: pool, migrations, rollup views
	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(ctx, cfg.DatabaseURL); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// 4. Best-effort cache
	ca, err := cache.New(ctx, cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer ca.Close()

	// 5. Rollup refresh backstop
	refresher, err := store.NewRefresher(st, cfg.RollupRefreshSchedule)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	refresher.Start()
	defer refresher.Stop()

	// 6. Create and start API server
	srv := api.NewServer(cfg, registry, st, ca)

	go func() {
		log.Printf("Telemetry API server starting on %s:%d (devices: %d)", cfg.ListenAddress, cfg.Port, len(registry.Devices()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
