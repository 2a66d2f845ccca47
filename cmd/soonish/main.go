package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	soonish "github.com/pypeaday/soonish-sub002"
	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/event"
	"github.com/pypeaday/soonish-sub002/httpapi"
	"github.com/pypeaday/soonish-sub002/notice"
	"github.com/pypeaday/soonish-sub002/pkg/config"
	"github.com/pypeaday/soonish-sub002/pkg/environment"
	"github.com/pypeaday/soonish-sub002/pkg/logger"
	"github.com/pypeaday/soonish-sub002/pkg/pg"
	"github.com/pypeaday/soonish-sub002/pkg/redis"
	"github.com/pypeaday/soonish-sub002/pkg/requestid"
	"github.com/pypeaday/soonish-sub002/pkg/secrets"
	"github.com/pypeaday/soonish-sub002/runtime"
	"github.com/pypeaday/soonish-sub002/storage/postgres"
	"github.com/pypeaday/soonish-sub002/transport/chathook"
	"github.com/pypeaday/soonish-sub002/transport/gotify"
	"github.com/pypeaday/soonish-sub002/transport/ntfy"
	"github.com/pypeaday/soonish-sub002/transport/postmarkmail"
	"github.com/pypeaday/soonish-sub002/transport/smtpmail"
	"github.com/pypeaday/soonish-sub002/transport/telegram"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"soonish"`

	// AppSecretKey encrypts channel targets at rest. Hex or base64, 32 bytes.
	AppSecretKey string `env:"APP_SECRET_KEY,required"`

	NoticeTemplatesPath string        `env:"NOTICE_TEMPLATES_PATH"`
	ReportCacheTTL      time.Duration `env:"REPORT_CACHE_TTL" envDefault:"1h"`

	WorkerPullInterval  time.Duration `env:"WORKER_PULL_INTERVAL" envDefault:"1s"`
	WorkerMaxConcurrent int           `env:"WORKER_MAX_CONCURRENT" envDefault:"4"`

	WebhookSigningSecret string `env:"WEBHOOK_SIGNING_SECRET"`
	TelegramBotToken     string `env:"TELEGRAM_BOT_TOKEN"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Environment, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), environment.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("service exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg appConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appKey, err := secrets.ParseKey(cfg.AppSecretKey)
	if err != nil {
		return fmt.Errorf("parse APP_SECRET_KEY: %w", err)
	}

	var pgCfg pg.Config
	config.MustLoad(&pgCfg)
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	var redisCfg redis.Config
	config.MustLoad(&redisCfg)
	cache, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Warn("failed to close redis client", logger.Error(err))
		}
	}()

	store, err := postgres.New(pool, appKey)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	rt, err := runtime.New(store, runtime.WithLogger(log))
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}

	transports, err := buildTransports(cfg, log)
	if err != nil {
		return fmt.Errorf("build transports: %w", err)
	}

	catalog := notice.Default()
	if cfg.NoticeTemplatesPath != "" {
		catalog, err = notice.Load(cfg.NoticeTemplatesPath)
		if err != nil {
			return fmt.Errorf("load notice templates: %w", err)
		}
		log.Info("notice templates loaded", slog.String("path", cfg.NoticeTemplatesPath))
	}

	svc, err := soonish.New(store, rt, transports,
		soonish.WithLogger(log),
		soonish.WithCatalog(catalog),
		soonish.WithReportCache(cache, cfg.ReportCacheTTL),
	)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	worker, err := runtime.NewWorker(rt,
		runtime.WithPullInterval(cfg.WorkerPullInterval),
		runtime.WithMaxConcurrent(cfg.WorkerMaxConcurrent),
	)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	janitor, err := runtime.NewJanitor(rt)
	if err != nil {
		return fmt.Errorf("create janitor: %w", err)
	}

	api, err := httpapi.New(svc,
		httpapi.WithLogger(log),
		httpapi.WithReadyChecks(pg.Healthcheck(pool), redis.Healthcheck(cache)),
	)
	if err != nil {
		return fmt.Errorf("create http api: %w", err)
	}

	var httpCfg httpapi.Config
	config.MustLoad(&httpCfg)
	srv := httpapi.NewServer(httpCfg, httpapi.WithServerLogger(log))

	handler := environment.Middleware(environment.Environment(cfg.Environment))(api.Handler())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(janitor.Run(ctx))
	g.Go(func() error {
		return srv.Run(ctx, handler)
	})

	log.Info("soonish started",
		slog.String("addr", httpCfg.Addr),
		slog.String("environment", cfg.Environment),
	)
	return g.Wait()
}

// buildTransports assembles the delivery registry from the environment.
// ntfy, gotify and webhook need no credentials and are always registered;
// telegram and email join only when their settings are present. Deliveries
// to a kind with no transport are recorded as permanently failed, so the
// startup log spells out which kinds are live.
func buildTransports(cfg appConfig, log *slog.Logger) (*delivery.Registry, error) {
	reg := delivery.NewRegistry()
	reg.Register(event.ChannelNtfy, ntfy.New())
	reg.Register(event.ChannelGotify, gotify.New())

	var hookOpts []chathook.Option
	if cfg.WebhookSigningSecret != "" {
		hookOpts = append(hookOpts, chathook.WithSigningSecret(cfg.WebhookSigningSecret))
	}
	reg.Register(event.ChannelWebhook, chathook.New(hookOpts...))

	kinds := []string{string(event.ChannelNtfy), string(event.ChannelGotify), string(event.ChannelWebhook)}

	if cfg.TelegramBotToken != "" {
		tg, err := telegram.New(cfg.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("telegram transport: %w", err)
		}
		reg.Register(event.ChannelTelegram, tg)
		kinds = append(kinds, string(event.ChannelTelegram))
	}

	var pmCfg postmarkmail.Config
	config.MustLoad(&pmCfg)
	var smtpCfg smtpmail.Config
	config.MustLoad(&smtpCfg)

	switch {
	case pmCfg.ServerToken != "":
		mailer, err := postmarkmail.New(pmCfg)
		if err != nil {
			return nil, fmt.Errorf("postmark transport: %w", err)
		}
		reg.Register(event.ChannelEmail, mailer)
		kinds = append(kinds, string(event.ChannelEmail)+" (postmark)")
	case smtpCfg.Host != "":
		mailer, err := smtpmail.New(smtpCfg)
		if err != nil {
			return nil, fmt.Errorf("smtp transport: %w", err)
		}
		reg.Register(event.ChannelEmail, mailer)
		kinds = append(kinds, string(event.ChannelEmail)+" (smtp)")
	default:
		log.Warn("no email transport configured, deliveries to email channels will fail")
	}

	log.Info("transports registered", slog.Any("kinds", kinds))
	return reg, nil
}
