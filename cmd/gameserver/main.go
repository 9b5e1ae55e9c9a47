// Package main provides the Duskhall combat server binary.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kmaitland/duskhall/internal/config"
	"github.com/kmaitland/duskhall/internal/game/combat"
	"github.com/kmaitland/duskhall/internal/game/dice"
	"github.com/kmaitland/duskhall/internal/game/hostile"
	"github.com/kmaitland/duskhall/internal/game/session"
	"github.com/kmaitland/duskhall/internal/gameserver"
	"github.com/kmaitland/duskhall/internal/observability"
	"github.com/kmaitland/duskhall/internal/scripting"
	"github.com/kmaitland/duskhall/internal/server"
	"github.com/kmaitland/duskhall/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	spawnsPath := flag.String("spawns", "content/spawns.yaml", "path to initial hostile spawn specs; empty = no initial spawns")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer observability.Sync(logger)

	cryptoSrc := dice.NewCryptoSource()
	diceRoller := dice.NewLoggedRoller(cryptoSrc, logger)

	// Connect to PostgreSQL for reward persistence.
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	// Load hostile templates and spawn the initial population.
	templates, err := hostile.LoadTemplates(cfg.Content.HostilesDir)
	if err != nil {
		logger.Fatal("loading hostile templates", zap.Error(err))
	}
	logger.Info("loaded hostile templates", zap.Int("count", len(templates)))

	hostileMgr := hostile.NewManager()
	if *spawnsPath != "" {
		specs, err := hostile.LoadSpawns(*spawnsPath)
		if err != nil {
			logger.Fatal("loading spawn specs", zap.Error(err))
		}
		spawned, err := hostile.Populate(hostileMgr, templates, specs)
		if err != nil {
			logger.Fatal("spawning hostiles", zap.Error(err))
		}
		logger.Info("initial hostile population complete", zap.Int("spawned", spawned))
	}

	sessMgr := session.NewManager()

	// Initialise scripting: a global VM plus one per area subdirectory.
	scriptMgr := scripting.NewManager(diceRoller, logger)
	defer scriptMgr.Close()
	if info, err := os.Stat(cfg.Content.ScriptsDir); err == nil && info.IsDir() {
		scriptStart := time.Now()
		entries, err := os.ReadDir(cfg.Content.ScriptsDir)
		if err != nil {
			logger.Fatal("reading scripts dir", zap.Error(err))
		}
		loaded := 0
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(cfg.Content.ScriptsDir, entry.Name())
			if entry.Name() == "global" {
				err = scriptMgr.LoadGlobal(dir, cfg.Content.ScriptInstructionLimit)
			} else {
				err = scriptMgr.LoadArea(entry.Name(), dir, cfg.Content.ScriptInstructionLimit)
			}
			if err != nil {
				logger.Fatal("loading scripts",
					zap.String("dir", dir), zap.Error(err))
			}
			loaded++
		}
		logger.Info("scripting engine initialized",
			zap.Int("script_dirs", loaded),
			zap.Duration("elapsed", time.Since(scriptStart)))
	} else {
		logger.Info("scripts dir not found, scripting disabled",
			zap.String("dir", cfg.Content.ScriptsDir))
	}

	coordinator := combat.NewCoordinator(combat.CoordinatorOptions{
		Src:         cryptoSrc,
		TurnTimeout: cfg.Combat.TurnTimeout,
		TurnPause:   cfg.Combat.TurnPause,
		Sink:        gameserver.NewRewardFanout(sessMgr, hostileMgr, postgres.NewRewardRepository(pool.DB()), logger),
		Broadcaster: gameserver.NewRoomBroadcaster(sessMgr, hostileMgr, logger),
		Hooks:       scripting.NewCombatHooks(scriptMgr),
		Logger:      logger,
	})

	lifecycle := server.NewLifecycle(logger)

	coordinatorDone := make(chan struct{})
	lifecycle.Add("combat-coordinator", &server.FuncService{
		StartFn: func() error {
			<-coordinatorDone
			return nil
		},
		StopFn: func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := coordinator.Shutdown(drainCtx); err != nil {
				logger.Warn("coordinator drain incomplete", zap.Error(err))
			}
			close(coordinatorDone)
		},
	})

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("combat server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
