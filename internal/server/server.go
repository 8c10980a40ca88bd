package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wallet-service/internal/broker"
	"wallet-service/internal/config"
	"wallet-service/internal/domain"
	"wallet-service/internal/handler"
	"wallet-service/internal/identity"
	"wallet-service/internal/repository"
	"wallet-service/internal/service"
)

// Server represents the HTTP server
type Server struct {
	router *mux.Router
	server *http.Server
	db     *sql.DB
	rabbit *broker.RabbitMQ
	logger *slog.Logger
	port   string
}

// NewServer wires the store, identity client, event publisher and routes
// described by cfg.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{logger: logger}

	accounts, ping, err := s.openStore(cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := s.openPublisher(cfg)
	if err != nil {
		s.closeResources()
		return nil, err
	}

	verifier := identity.NewCircuitBreaker(
		identity.NewClient(cfg.IdentityBaseURL, cfg.IdentityTimeout, logger),
		identity.BreakerConfig{
			FailureThreshold: cfg.IdentityBreakerThreshold,
			OpenTimeout:      cfg.IdentityBreakerOpenTimeout,
		},
	)

	accountService := service.NewAccountService(accounts, verifier, publisher, logger, cfg.ConflictRetries)
	accountHandler := handler.NewAccountHandler(accountService, logger)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware)

	accountHandler.RegisterRoutes(router)

	router.HandleFunc("/health", healthHandler(ping)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router = router
	return s, nil
}

func (s *Server) openStore(cfg *config.Config) (domain.AccountRepository, func(context.Context) error, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		s.logger.Warn("Using in-memory account store, balances will not survive a restart")
		return repository.NewMemoryAccountRepository(s.logger), func(context.Context) error { return nil }, nil
	}

	db, err := sql.Open(cfg.DBDriver, cfg.GetDBConnectionString())
	if err != nil {
		return nil, nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	s.db = db
	s.logger.Info("Successfully connected to database", "driver", cfg.DBDriver)

	store := repository.NewStore(db, s.logger)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		s.db = nil
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return store.Account(), store.Ping, nil
}

func (s *Server) openPublisher(cfg *config.Config) (domain.EventPublisher, error) {
	if cfg.RabbitMQURL == "" {
		s.logger.Info("RabbitMQ not configured, account events go to the log")
		return broker.NewLogEventPublisher(s.logger), nil
	}

	rabbit := broker.NewRabbitMQ(cfg.RabbitMQURL)
	if err := rabbit.Connect(); err != nil {
		return nil, err
	}
	if err := rabbit.DeclareExchange(cfg.RabbitMQExchange); err != nil {
		rabbit.Close()
		return nil, err
	}
	s.rabbit = rabbit
	s.logger.Info("Connected to RabbitMQ", "exchange", cfg.RabbitMQExchange)

	return broker.NewRabbitMQPublisher(rabbit.Channel, cfg.RabbitMQExchange), nil
}

func healthHandler(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server stopped unexpectedly", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains in-flight requests, then releases the database and broker.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	if s.rabbit != nil {
		s.rabbit.Close()
		s.rabbit = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.closeResources()
		return nil, "", err
	}

	return server, port, nil
}
