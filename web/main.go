package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quizlane/quizlane/internal/apiclient"
	"github.com/quizlane/quizlane/internal/config"
	"github.com/quizlane/quizlane/internal/pkg/logger"
	"github.com/quizlane/quizlane/internal/tokens"
	"github.com/quizlane/quizlane/web/internal/handlers"
	"github.com/quizlane/quizlane/web/internal/middleware"
	"github.com/quizlane/quizlane/web/internal/session"
)

// setupWebLogging configures the global logger for the web service
func setupWebLogging(logLevel, logFormat string) error {
	cfg := logger.Config{
		Level:       logger.ParseLevel(logLevel),
		LogToStderr: true, // Web service always logs to stderr
		Format:      logFormat,
	}

	globalLogger, err := logger.SetupLogger(cfg)
	if err != nil {
		return err
	}

	slog.SetDefault(globalLogger)
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err = setupWebLogging(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to setup logging: %v\n", err)
		os.Exit(1)
	}

	log := slog.Default().With("component", "web")
	log.Info("starting quizlane web gateway")

	sessionSecret := resolveSessionSecret(cfg, log)

	sessionMgr := session.NewManager(sessionSecret,
		cfg.Session.AccessCookieMaxAge, cfg.Session.RefreshCookieMaxAge)
	store := session.NewStore(sessionMgr)

	manager := tokens.NewManager(store, tokens.ManagerConfig{
		BaseURL:          cfg.API.BaseURL,
		Navigator:        &session.Navigator{LoginPath: cfg.Tokens.LoginPath},
		RefreshThreshold: cfg.Tokens.RefreshThreshold.Std(),
		LoginPath:        cfg.Tokens.LoginPath,
		PublicPaths:      cfg.Tokens.PublicPaths,
		Logger:           log,
		HTTPClient: &http.Client{
			Timeout:   cfg.API.Timeout.Std(),
			Transport: apiclient.NewMetricsTransport(nil),
		},
	})

	client := apiclient.New(cfg.API.BaseURL, manager, &http.Client{
		Timeout:   cfg.API.Timeout.Std(),
		Transport: apiclient.NewMetricsTransport(nil),
	}, log)

	authMw := middleware.NewAuthMiddleware(sessionMgr, cfg.Tokens.LoginPath, log)
	h := handlers.New(client, store, sessionMgr, log)

	router := createRouter(h, authMw)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("listening", slog.String("address", addr),
		slog.String("upstream", cfg.API.BaseURL))

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		log.Error("failed to start server", slog.Any("error", err))
		os.Exit(1)
	}
}

// resolveSessionSecret picks the cookie secret.
// Priority: env var > config file > random (dev mode, sessions won't persist).
func resolveSessionSecret(cfg *config.Config, log *slog.Logger) []byte {
	if envSecret := os.Getenv("SESSION_SECRET"); envSecret != "" {
		secret, err := base64.StdEncoding.DecodeString(envSecret)
		if err == nil {
			log.Info("using session secret from environment variable")
			return secret
		}
		log.Warn("failed to decode SESSION_SECRET env var, trying config", slog.Any("error", err))
	}

	if cfg.Session.Secret != "" {
		secret, err := base64.StdEncoding.DecodeString(cfg.Session.Secret)
		if err == nil {
			log.Info("using session secret from config file")
			return secret
		}
		log.Warn("failed to decode session secret from config", slog.Any("error", err))
	}

	log.Warn("no session secret configured, generating random one (sessions won't persist)")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Error("failed to generate session secret", slog.Any("error", err))
		os.Exit(1)
	}
	return secret
}

// createRouter sets up the HTTP router with all routes and middleware
func createRouter(h *handlers.Handler, authMw *middleware.AuthMiddleware) http.Handler {
	router := mux.NewRouter()

	// Probes (no auth required)
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Session endpoints
	router.HandleFunc("/login", h.Login).Methods("POST")
	router.HandleFunc("/logout", h.Logout).Methods("GET", "POST")
	router.Handle("/me", authMw.RequireAuth(http.HandlerFunc(h.Me))).Methods("GET")

	// Authenticated pass-through to the upstream API. The login and refresh
	// endpoints stay reachable without credentials.
	router.HandleFunc("/api/users/login", h.Proxy).Methods("POST")
	router.HandleFunc(tokens.RefreshPath, h.Proxy).Methods("POST")
	router.PathPrefix("/api/").Handler(authMw.RequireAuth(http.HandlerFunc(h.Proxy)))

	return middleware.LogRequest(router)
}
