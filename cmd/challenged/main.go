package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/challenge-runtime/internal/achievement"
	appcfg "github.com/park285/challenge-runtime/internal/config"
	"github.com/park285/challenge-runtime/internal/event"
	"github.com/park285/challenge-runtime/internal/game"
	"github.com/park285/challenge-runtime/internal/games/chessengine"
	"github.com/park285/challenge-runtime/internal/games/nim"
	"github.com/park285/challenge-runtime/internal/obslog"
	"github.com/park285/challenge-runtime/internal/orchestrator"
	"github.com/park285/challenge-runtime/internal/replay/archive"
	"github.com/park285/challenge-runtime/internal/session"
	"github.com/park285/challenge-runtime/internal/transport"
)

// engineCodec serializes session states through the engine registry so
// the redis store stays ignorant of concrete game types.
type engineCodec map[string]game.Engine

func (c engineCodec) EncodeState(challengeID string, s game.State) (string, error) {
	eng, ok := c[challengeID]
	if !ok {
		return "", fmt.Errorf("unknown challenge %q", challengeID)
	}
	return eng.Serialize(s)
}

func (c engineCodec) DecodeState(challengeID, raw string) (game.State, error) {
	eng, ok := c[challengeID]
	if !ok {
		return nil, fmt.Errorf("unknown challenge %q", challengeID)
	}
	return eng.Deserialize(raw)
}

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	engines := []game.Engine{nim.New(), chessengine.New()}
	codec := make(engineCodec, len(engines))
	for _, eng := range engines {
		codec[eng.ID()] = eng
	}

	store := session.NewMemoryStore()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		defer rdb.Close()
		store, err = session.NewRedisStore(rdb, codec)
		if err != nil {
			logger.Fatal("redis store init failed", zap.Error(err))
		}
		logger.Info("using redis session store")
	}

	sessions, err := session.NewManager(store, session.Config{MaxAge: cfg.SessionTTL}, logger)
	if err != nil {
		logger.Fatal("session manager init failed", zap.Error(err))
	}

	var replayArchive archive.Archive = archive.NewMemory()
	if cfg.DatabaseURL != "" {
		pg, err := archive.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("replay archive init failed", zap.Error(err))
		}
		defer pg.Close()
		replayArchive = pg
		logger.Info("using postgres replay archive")
	}

	achieveEngine := achievement.NewEngine(logger)
	defs, err := achievement.DefaultCatalog()
	if err != nil {
		logger.Fatal("achievement catalog load failed", zap.Error(err))
	}
	if err := achieveEngine.RegisterAll(defs...); err != nil {
		logger.Fatal("achievement registration failed", zap.Error(err))
	}

	collector := event.NewCollector(event.NewKeyedSequencer(), logger)

	orch, err := orchestrator.New(orchestrator.Deps{
		Sessions:     sessions,
		Engines:      engines,
		Achievements: achieveEngine,
		Archive:      replayArchive,
		Events:       collector,
		Difficulty:   cfg.DefaultDifficulty,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("orchestrator init failed", zap.Error(err))
	}
	logger.Info("challenge runtime ready",
		zap.Strings("challenges", orch.Challenges()),
		zap.Duration("session_ttl", cfg.SessionTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.CleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					if _, err := sessions.Cleanup(rootCtx); err != nil {
						logger.Warn("session cleanup failed", zap.Error(err))
					}
				}
			}
		}()
	}

	toolSrv := transport.NewServer(orch, logger)
	go func() {
		if err := toolSrv.ListenAndServe(cfg.ListenAddr); err != nil {
			logger.Fatal("tool server failed", zap.Error(err))
		}
	}()

	var eventSrv *transport.EventServer
	if cfg.EventsAddr != "" {
		eventSrv = transport.NewEventServer(collector, logger)
		go func() {
			if err := eventSrv.ListenAndServe(cfg.EventsAddr); err != nil {
				logger.Fatal("event server failed", zap.Error(err))
			}
		}()
	}

	<-rootCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := toolSrv.Shutdown(); err != nil {
		logger.Warn("tool server shutdown failed", zap.Error(err))
	}
	if eventSrv != nil {
		if err := eventSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("event server shutdown failed", zap.Error(err))
		}
	}
}
