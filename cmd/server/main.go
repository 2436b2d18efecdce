package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"squadrat-planner/internal/server"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	// Missing .env is fine; the environment itself still applies.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Could not load .env: %v", err)
	}

	cfg := server.Config{
		Addr:       getEnv("SERVER_ADDR", "127.0.0.1:8080"),
		BRouterURL: getEnv("BROUTER_URL", "https://brouter.de"),
		CachePath:  getEnv("ROAD_CACHE_PATH", defaultCachePath()),
		Version:    version,
	}
	if endpoints := os.Getenv("ROADS_ENDPOINTS"); endpoints != "" {
		for _, e := range strings.Split(endpoints, ",") {
			if e = strings.TrimSpace(e); e != "" {
				cfg.RoadsEndpoints = append(cfg.RoadsEndpoints, e)
			}
		}
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if _, err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	log.Printf("Received signal %v, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "roads.db"
	}
	return home + "/.squadrat-planner/roads.db"
}
