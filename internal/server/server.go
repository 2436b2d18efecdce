// Package server wires the HTTP API together and owns its lifecycle.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"squadrat-planner/internal/handlers"
	"squadrat-planner/internal/roads"
	"squadrat-planner/internal/routeservice"
	"squadrat-planner/internal/routing"
	"squadrat-planner/internal/storage"
)

// Server wraps the HTTP server and all dependencies
type Server struct {
	httpServer *http.Server
	handler    *handlers.Handler
	cache      storage.RoadCache
	listener   net.Listener
	addr       string
}

// Config holds server configuration
type Config struct {
	Addr           string // e.g., "127.0.0.1:8080" or "127.0.0.1:0" for random port
	RoadsEndpoints []string
	BRouterURL     string
	CachePath      string // empty disables the road cache
	Version        string
}

// New creates and initializes a new server (does not start it)
func New(cfg Config) (*Server, error) {
	if cfg.BRouterURL == "" {
		return nil, fmt.Errorf("routing service URL is required")
	}

	var cache storage.RoadCache
	if cfg.CachePath != "" {
		log.Printf("Initializing road cache...")
		c, err := storage.NewSQLiteRoadCache(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize road cache: %w", err)
		}
		cache = c
	}

	roadClient := roads.NewClient(cfg.RoadsEndpoints, cache)
	routeClient := routeservice.NewClient(cfg.BRouterURL)
	planner := routing.NewPlanner(roadClient, routeClient)

	handler := &handlers.Handler{
		Planner: planner,
		Version: cfg.Version,
	}

	mux := setupRoutes(handler)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      loggingMiddleware(corsMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		cache:      cache,
		addr:       cfg.Addr,
	}, nil
}

// Start starts the server and returns the actual address (useful for random port)
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	log.Printf("Starting server on %s", actualAddr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return actualAddr, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

// setupRoutes configures all HTTP routes
func setupRoutes(handler *handlers.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler.HandleHealthCheck(w, r)
	})

	mux.HandleFunc("/api/optimize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler.HandleOptimize(w, r)
	})

	mux.HandleFunc("/api/route", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler.HandleRoute(w, r)
	})

	return mux
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		duration := time.Since(start)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, lrw.statusCode, duration)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Only allow localhost origins (local map frontends and development)
		if origin == "" ||
			strings.HasPrefix(origin, "http://localhost:") ||
			strings.HasPrefix(origin, "http://127.0.0.1:") {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
