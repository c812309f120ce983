package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/illarion/lockbot/internal/config"
	"github.com/illarion/lockbot/internal/device"
	"github.com/illarion/lockbot/internal/files"
	"github.com/illarion/lockbot/internal/logger"
	"github.com/illarion/lockbot/internal/ratelimit"
	"github.com/illarion/lockbot/internal/router"
	"github.com/illarion/lockbot/internal/security"
	"github.com/illarion/lockbot/internal/session"
	"github.com/illarion/lockbot/internal/storage"
	"github.com/illarion/lockbot/internal/transport/telegram"
	"github.com/illarion/lockbot/internal/vault"
)

const (
	sweepInterval   = 30 * time.Second
	limiterInterval = 5 * time.Minute
)

// Serve runs the bot until ctx is cancelled
func Serve(ctx context.Context, configPath string) {
	if err := serve(ctx, configPath); err != nil {
		HandleError(err)
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.Open(cfg.RegistryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	validator, err := security.New(cfg.Roots)
	if err != nil {
		return err
	}

	engine := vault.New(store, vault.Options{
		Iterations: cfg.KDFIterations,
		Timeout:    cfg.OpTimeout,
		Resolver:   validator,
		Logger:     log,
	})
	if _, err := engine.Reconcile(ctx, validator.Roots()); err != nil {
		log.Warn("startup reconcile failed", zap.Error(err))
	}

	var rt *router.Router
	sessions := session.NewManager(session.Options{
		Timeout: cfg.SessionTimeout,
		OnExpire: func(s session.Session) {
			rt.SessionExpired(s)
		},
	})
	limiter := ratelimit.New(cfg.UnlockPerMinute, cfg.UnlockBurst, log)

	rt = router.New(router.Config{
		Owner:    cfg.OwnerID,
		Vault:    engine,
		Files:    files.New(validator, vault.Suffix, log),
		Device:   device.NewController(device.Shell{Timeout: cfg.DeviceTimeout}, log),
		Store:    store,
		Sessions: sessions,
		Limiter:  limiter,
		Logger:   log,
	})

	bot, err := telegram.New(cfg.Token, rt, log)
	if err != nil {
		return err
	}
	rt.SetNotifier(bot)

	if err := bot.SyncCommands(ctx, rt.Commands()); err != nil {
		log.Warn("failed to publish command menu", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sessions.Run(ctx, sweepInterval)
	}()
	go func() {
		defer wg.Done()
		limiter.Run(ctx, limiterInterval)
	}()

	log.Info("lockbot started",
		zap.Int64("owner", cfg.OwnerID),
		zap.Strings("roots", validator.Roots()),
		zap.String("registry", store.Path()))

	runErr := bot.Run(ctx)

	wg.Wait()
	// Operations already handed to the engine finish and report before exit
	rt.Wait()
	log.Info("lockbot stopped")
	return runErr
}
