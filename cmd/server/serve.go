package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tutorchat/internal/config"
	"tutorchat/internal/database"
	"tutorchat/internal/handlers"
	"tutorchat/internal/logger"
	"tutorchat/internal/middleware"
	"tutorchat/internal/router"
	"tutorchat/internal/services"
	"tutorchat/internal/session"
	"tutorchat/internal/web"
	"tutorchat/internal/websocket"
	"tutorchat/internal/worker"
)

const (
	sweepInterval   = 5 * time.Minute
	shutdownTimeout = 30 * time.Second
)

type serveCommander struct {
	debug   bool
	envFile string
}

func newServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}
	cmder.bindFlags(cmd)

	return cmd
}

func (c *serveCommander) bindFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&c.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&c.envFile, "env-file", "", "Path to a .env file (default .env)")
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.envFile != "" {
		os.Setenv("ENV_FILE", c.envFile)
	}

	// ──── Step 1: Load Configuration ────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	log := logger.NewLogger(cfg.Env, cfg.Debug || c.debug)
	defer log.Sync()
	log.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("model", cfg.GeminiModel),
		zap.String("session_backend", cfg.SessionBackend),
	)

	// ──── Step 2: Session Store ────
	var (
		store       session.Store
		redisClient *redis.Client
	)
	switch cfg.SessionBackend {
	case "redis":
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		store = session.NewRedisStore(redisClient, cfg.SessionTTL)
		log.Info("redis session store connected")
	default:
		memory := session.NewMemoryStore(cfg.SessionTTL)
		janitor := worker.NewJanitor(memory, sweepInterval, log)
		janitor.Start()
		defer janitor.Stop()
		store = memory
	}

	// ──── Step 3: Gemini Client ────
	generator, err := services.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		return err
	}
	defer generator.Close()

	tutor := services.NewTutorService(generator, log, services.TutorOptions{
		ConcurrentReqs: cfg.GeminiConcurrentReqs,
		Timeout:        cfg.GeminiRequestTimeout,
		MaxRetries:     cfg.GeminiMaxRetries,
	})

	// ──── Step 4: WebSocket Hub and Chat ────
	hub := websocket.NewHub(redisClient, log)
	chat := services.NewChatService(store, tutor, hub, log)

	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}
	chatHandler := handlers.NewChatHandler(chat, renderer, hub, log)

	// ──── Step 5: HTTP Server ────
	r := router.New(chatHandler, middleware.NewSessionCookies(cfg.CookieSecure, cfg.SessionTTL), log)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// A chat turn may spend every retry on the upstream call.
		WriteTimeout: time.Duration(cfg.GeminiMaxRetries+1)*cfg.GeminiRequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("tutorchat ready", zap.String("addr", "http://localhost:"+cfg.Port))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
