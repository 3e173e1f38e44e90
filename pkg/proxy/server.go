package proxy

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/woffyai/woffyd/pkg/cache"
	"github.com/woffyai/woffyd/pkg/config"
	"github.com/woffyai/woffyd/pkg/instructions"
	"github.com/woffyai/woffyd/pkg/llmclient"
	"github.com/woffyai/woffyd/pkg/logutil"
	"github.com/woffyai/woffyd/pkg/models"
	"github.com/woffyai/woffyd/pkg/relay"
	"github.com/woffyai/woffyd/pkg/version"
	"golang.org/x/crypto/acme/autocert"
)

const (
	shutdownTimeout   = 10 * time.Second
	upstreamModelsTTL = 5 * time.Minute
)

type Server struct {
	cfg            config.ServerConfig
	instructions   *instructions.Store
	models         *models.Store
	relay          *relay.Relay
	metrics        *Metrics
	upstreamModels *cache.TTL[string, []string]
	handler        http.Handler
	httpServer     *http.Server
	logger         *log.Logger
	activeChats    atomic.Int64
	draining       atomic.Bool
}

// NewServer builds the stores, the upstream client and the router. A missing
// API key is not fatal: the admin endpoints keep working and chat requests
// fail with a configuration error.
func NewServer(cfg *config.ServerConfig) (*Server, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Server{
		cfg:            *cfg,
		instructions:   instructions.NewStore(cfg.DataDir),
		models:         models.NewStore(cfg.DataDir),
		metrics:        NewMetrics(),
		upstreamModels: cache.NewTTL[string, []string](upstreamModelsTTL),
		logger:         log.WithPrefix("server"),
	}

	var upstream relay.Upstream
	if cfg.HasAPIKey() {
		client, err := llmclient.New(llmclient.Options{
			APIKey:  cfg.Upstream.APIKey,
			BaseURL: cfg.Upstream.BaseURL,
			Attribution: llmclient.Attribution{
				Referer:   cfg.Upstream.HTTPReferer,
				Title:     cfg.Upstream.XTitle,
				UserAgent: version.UserAgent(),
			},
			HeaderTimeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("init upstream client: %w", err)
		}
		upstream = client
	} else {
		s.logger.Error("upstream API key not set; chat requests will fail", "provider", cfg.Upstream.Provider, "env", cfg.Upstream.APIKeyEnv)
	}
	s.relay = relay.New(s.instructions, upstream, relay.Options{
		Model:         cfg.Upstream.Model,
		ModelPolicy:   cfg.Upstream.ModelPolicy,
		MaxTokens:     cfg.Upstream.MaxTokens,
		PrependPolicy: cfg.Prompt.PrependPolicy,
		Timeout:       time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		Catalog:       s.models,
		Observer:      s.metrics,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logutil.StandardLog("http", log.InfoLevel),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.metrics.Middleware)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/model.json", s.handleListModels)

	r.Route("/api", func(api chi.Router) {
		api.With(s.chatLifecycleMiddleware).Post("/chat", s.handleChat)
		api.Get("/instructions", s.handleGetInstructions)
		api.Post("/instructions", s.handleSetInstruction)
		api.Get("/models", s.handleListModels)
		api.Post("/save-models", s.handleSaveModels)
		api.Post("/add-model", s.handleAddModel)
		api.Get("/upstream-models", s.handleUpstreamModels)
	})
	s.handler = r

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logutil.StandardLog("http", log.ErrorLevel),
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Run(ctx context.Context) error {
	cfg := s.cfg
	errCh := make(chan error, 2)

	if cfg.TLS.Enabled {
		mgr := &autocert.Manager{
			Cache:      autocert.DirCache(cfg.TLS.CacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Email:      cfg.TLS.Email,
		}
		httpsSrv := s.httpServer
		httpsSrv.Addr = cfg.TLS.ListenAddr
		httpsSrv.TLSConfig = &tls.Config{GetCertificate: mgr.GetCertificate, MinVersion: tls.VersionTLS12}

		httpChallenge := &http.Server{
			Addr:              httpChallengeAddr(cfg.ListenAddr),
			Handler:           mgr.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			s.logger.Info("http challenge/redirect listening", "addr", httpChallenge.Addr)
			if err := httpChallenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http challenge server: %w", err)
			}
		}()
		go func() {
			s.logger.Info("https listening", "addr", httpsSrv.Addr, "domain", cfg.TLS.Domain)
			if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("https server: %w", err)
			}
		}()

		return s.waitAndShutdown(ctx, errCh, httpsSrv, httpChallenge)
	}

	go func() {
		s.logger.Info("woffyd listening", "addr", cfg.ListenAddr, "model", cfg.Upstream.Model, "data_dir", cfg.DataDir)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	return s.waitAndShutdown(ctx, errCh, s.httpServer)
}

// waitAndShutdown blocks until ctx ends or a listener fails, then refuses
// new chats, lets in-flight ones finish and shuts the servers down, all
// within shutdownTimeout.
func (s *Server) waitAndShutdown(ctx context.Context, errCh <-chan error, servers ...*http.Server) error {
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	s.draining.Store(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.waitForChatIdle(shutdownCtx)
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", "addr", srv.Addr, "err", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	return firstErr(errCh)
}

func httpChallengeAddr(listenAddr string) string {
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return ":80"
	}
	return net.JoinHostPort(host, "80")
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
}

func (s *Server) chatLifecycleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			w.Header().Set("Retry-After", "3")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "server shutting down"})
			return
		}
		s.activeChats.Add(1)
		defer s.activeChats.Add(-1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) waitForChatIdle(ctx context.Context) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	lastLog := time.Time{}
	for {
		active := s.activeChats.Load()
		if active <= 0 {
			s.logger.Info("shutdown: no active chats")
			return
		}
		if lastLog.IsZero() || time.Since(lastLog) >= time.Second {
			s.logger.Info("shutdown: waiting for active chats", "active", active)
			lastLog = time.Now()
		}
		select {
		case <-ctx.Done():
			s.logger.Warn("shutdown: drain timed out", "active", active)
			return
		case <-t.C:
		}
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":             "Woffy.ai backend is running.",
		"version":             version.String(),
		"upstream_configured": s.relay.Configured(),
	})
}

func firstErr(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	default:
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
