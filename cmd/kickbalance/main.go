package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/kickbalance/internal/api"
	"github.com/rewired-gh/kickbalance/internal/cache"
	"github.com/rewired-gh/kickbalance/internal/config"
	"github.com/rewired-gh/kickbalance/internal/kickbase"
	"github.com/rewired-gh/kickbalance/internal/ledger"
	"github.com/rewired-gh/kickbalance/internal/logger"
	"github.com/rewired-gh/kickbalance/internal/models"
	"github.com/rewired-gh/kickbalance/internal/projection"
	"github.com/rewired-gh/kickbalance/internal/report"
	"github.com/rewired-gh/kickbalance/internal/runner"
	"github.com/rewired-gh/kickbalance/internal/storage"
	"github.com/rewired-gh/kickbalance/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	once       = flag.Bool("once", false, "Project every league once, print the report and exit")
	style      = flag.String("style", "dark", "Glamour style for the -once report (dark, light, notty)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxProjections, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var durable cache.Durable = store
	if cfg.Storage.Backend == "redis" {
		redisCache, err := storage.NewRedisCache(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis: %v", err)
		}
		defer func() {
			if err := redisCache.Close(); err != nil {
				logger.Error("Failed to close Redis: %v", err)
			}
		}()
		durable = redisCache
		logger.Info("Season cache backed by Redis at %s", cfg.Storage.RedisAddr)
	}

	kbClient := kickbase.NewClient(
		cfg.Kickbase.APIURL,
		cfg.Kickbase.Timeout,
		kickbase.ClientConfig{
			MaxRetries:            cfg.Kickbase.MaxRetries,
			RetryDelayBase:        cfg.Kickbase.RetryDelayBase,
			MaxIdleConns:          cfg.Kickbase.MaxIdleConns,
			MaxIdleConnsPerHost:   cfg.Kickbase.MaxIdleConnsPerHost,
			IdleConnTimeout:       cfg.Kickbase.IdleConnTimeout,
			MaxConcurrentRequests: cfg.Kickbase.MaxConcurrentRequests,
		},
	)

	projector := projection.New(kbClient, durable, projection.Config{
		Params: projection.Params{
			ReferenceDate: cfg.Season.ReferenceTime(),
			InitialCredit: cfg.Season.InitialCredit,
			DailyBonusCap: cfg.Season.DailyBonusCap,
			BidFactor:     cfg.Season.BidFactorDecimal(),
			PointsBonus:   cfg.Season.PointsBonus,
		},
		ValueDate: cfg.Season.MarketValueDate,
		Ledger: ledger.Config{
			PageRetries:    cfg.Ledger.PageRetries,
			PageRetryDelay: cfg.Ledger.PageRetryDelay,
		},
		UserTimeout:      cfg.Projection.UserTimeout,
		MaxParallelUsers: cfg.Projection.MaxParallelUsers,
	})

	creds := runner.Credentials{Email: cfg.Kickbase.Email, Password: cfg.Kickbase.Password}

	if *once {
		r := runner.New(kbClient, creds, projector, store, &terminalReport{w: os.Stdout, style: *style}, cfg.Projection.Leagues)
		if err := r.RunCycle(ctx); err != nil {
			logger.Fatal("Projection failed: %v", err)
		}
		return
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	var notifier runner.Notifier
	if telegramClient != nil {
		notifier = telegramClient
	}
	r := runner.New(kbClient, creds, projector, store, notifier, cfg.Projection.Leagues)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, r.RunCycle)
	}

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Port, store, r, cfg.API.AllowedOrigins)
		go func() {
			logger.Info("HTTP API listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP API stopped: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP API shutdown: %v", err)
			}
		}()
	}

	logger.Info("Starting projection service (interval: %v, parallel users: %d, concurrent requests: %d)",
		cfg.Projection.PollInterval,
		cfg.Projection.MaxParallelUsers,
		cfg.Kickbase.MaxConcurrentRequests,
	)

	ticker := time.NewTicker(cfg.Projection.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if errors.Is(err, runner.ErrBusy) {
			logger.Info("Skipping scheduled cycle, a projection is already running")
			return
		}
		if err != nil {
			consecutiveFailures++
			logger.Error("Projection cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial projection cycle")
	handleCycleResult(r.RunCycle(ctx))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled projection cycle")
			handleCycleResult(r.RunCycle(ctx))
		}
	}
}

// terminalReport prints league reports rendered with glamour.
type terminalReport struct {
	w     io.Writer
	style string
}

func (t *terminalReport) SendReport(leagueName string, rows []models.UserProjection, now time.Time) error {
	out, err := report.Render(report.Markdown(leagueName, rows, now), t.style)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(t.w, out)
	return err
}
