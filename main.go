package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"squash/config"
	"squash/crypto"
	"squash/game"
	"squash/game/hazards"
	"squash/logger"
	"squash/migrations"
	"squash/network"
	"squash/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	persistWorkers  = 4
	persistQueue    = 512
	persistTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.GET("/health", func(ctx *gin.Context) { ctx.String(200, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

// mountRoutes registers the API behind the origin guard. Replays are only
// served when a loader is configured.
func mountRoutes(r *gin.Engine, handler *network.Handler, replays network.ReplayLoader, log zerolog.Logger) {
	r.POST("/auth/guest", handler.GuestHandler)
	r.GET("/lobbies", handler.LobbiesHandler)
	r.GET("/ws", handler.RequireSession, handler.WebsocketHandler)
	if replays != nil {
		r.GET("/replays/:id", network.NewReplayHandler(replays, log).GetReplayHandler)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// storage
	var store game.Store = game.NopStore{}
	var replays network.ReplayLoader
	if cfg.PostgresURL != "" {
		if err := migrations.Migrate(cfg.PostgresURL, log); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		repo, err := storage.NewPostgresRepo(context.Background(), cfg.PostgresURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer repo.Close()
		store, replays = repo, repo
	} else {
		log.Warn().Msg("POSTGRES_URL not set, lobbies and replays will not be persisted")
	}

	// engine
	catalog := game.NewCatalog()
	if err := hazards.RegisterAll(catalog); err != nil {
		log.Fatal().Err(err).Msg("hazard registration failed")
	}

	engine := game.NewEngine(game.NewTickerGen(), cfg.SweepInterval, log)
	persister := game.NewPersister(store, persistWorkers, persistQueue, persistTimeout, engine.Post, log)
	hub := network.NewHub(log)

	registry := game.NewRegistry(game.RegistryConfig{
		MaxLobbies:         cfg.MaxLobbies,
		MaxPlayersPerLobby: cfg.MaxPlayersPerLobby,
		StrictTransitions:  cfg.StrictTransitions,
	}, game.Deps{
		Scheduler: engine.Scheduler(),
		Catalog:   catalog,
		Players:   hub,
		Persister: persister,
		Log:       log,
	})
	registry.OnCreate(hub.Attach)
	registry.OnCreate(func(l *game.Lobby) {
		game.AttachRecorder(l, game.DefaultRecorderConfig())
	})
	engine.SetRegistry(registry)

	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineStarted := make(chan struct{})
	engineDone := make(chan struct{})
	go func() {
		engine.Run(engineCtx, engineStarted)
		close(engineDone)
	}()
	<-engineStarted

	// rows left behind by a previous process
	engine.Call(engineCtx, func(r *game.Registry) error {
		r.Reconcile()
		return nil
	})

	// http
	tokens := crypto.NewJWTManager(cfg.JWTKey, cfg.GuestTokenAge)
	handler := network.NewHandler(tokens, engine, hub, cfg.AllowedOrigins, log)

	r := CreateServer(cfg.AllowedOrigins)
	mountRoutes(r, handler, replays, log)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	<-sigCh
	log.Info().Msg("SIGTERM or SIGINT received, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	stopEngine()
	<-engineDone
	persister.Close()
	log.Info().Msg("shutdown complete")
}
