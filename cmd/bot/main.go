package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/korjavin/eventbot/pkg/commands"
	"github.com/korjavin/eventbot/pkg/config"
	"github.com/korjavin/eventbot/pkg/events"
	"github.com/korjavin/eventbot/pkg/logger"
	"github.com/korjavin/eventbot/pkg/messages"
	"github.com/korjavin/eventbot/pkg/openai"
	"github.com/korjavin/eventbot/pkg/proposal"
	"github.com/korjavin/eventbot/pkg/scheduler"
	"github.com/korjavin/eventbot/pkg/signup"
	"github.com/korjavin/eventbot/pkg/storage"
	"github.com/korjavin/eventbot/pkg/telegram"
	"github.com/korjavin/eventbot/pkg/timeconv"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "eventbot",
		Usage:  "Telegram bot for private and group events with reminders.",
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the bot and its reminder and cleanup sweepers.",
				Action: runBot,
			},
			{
				Name:  "sweep",
				Usage: "Run one reminder pass and one cleanup pass, then exit.",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Log due reminders and expired events without changing anything."},
				},
				Action: sweepOnce,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Global.Error("Application failed: %v", err)
		os.Exit(1)
	}
}

// services holds the wiring shared by the subcommands
type services struct {
	cfg      *config.Config
	store    *storage.Store
	events   *events.Service
	signups  *signup.Registry
	composer *messages.Service
	catalog  *timeconv.Catalog
}

func setup() (*services, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	defaultZone, err := timeconv.LoadZone(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}
	catalog, err := timeconv.NewCatalog(cfg.ZoneCatalog)
	if err != nil {
		return nil, fmt.Errorf("invalid zone catalog: %w", err)
	}

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var generator messages.Generator
	if cfg.OpenAIAPIKey != "" {
		generator = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIAPIBase, cfg.OpenAIModel)
	}

	proposals := proposal.New(cfg.ProposalTTL)
	return &services{
		cfg:   cfg,
		store: store,
		events: events.New(store, proposals, events.Options{
			GroupPolicy:  events.OverlapPolicy(cfg.GroupOverlapPolicy),
			DefaultZone:  defaultZone,
			StoreTimeout: cfg.StoreTimeout,
		}),
		signups:  signup.New(store, cfg.StoreTimeout),
		composer: messages.New(generator),
		catalog:  catalog,
	}, nil
}

func (a *services) newScheduler(notifier scheduler.Notifier, releaser scheduler.Releaser, dryRun bool) *scheduler.Service {
	return scheduler.New(a.signups, a.store, notifier, a.composer, scheduler.Options{
		Interval:  a.cfg.SweepInterval,
		Timeout:   a.cfg.StoreTimeout,
		DryRun:    dryRun,
		UserZone:  a.events.UserZone,
		Releaser:  releaser,
		Proposals: a.events,
	})
}

func runBot(c *cli.Context) error {
	log := logger.Global
	log.Info("Starting event bot...")

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.store.Close()

	a.store.StartGCRoutine(a.cfg.GCInterval)

	bot, err := telegram.New(a.cfg.BotToken, a.store)
	if err != nil {
		return err
	}

	sched := a.newScheduler(bot, bot, false)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	handler := commands.New(a.events, a.signups, bot, a.composer, a.catalog)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		bot.Stop()
	}()

	log.Info("Bot is now running. Press CTRL-C to exit.")
	if err := bot.Start(handler.Commands(), handler.Callbacks(), nil); err != nil {
		return fmt.Errorf("error running bot: %w", err)
	}
	return nil
}

func sweepOnce(c *cli.Context) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.store.Close()

	dryRun := c.Bool("dry-run")
	var sched *scheduler.Service
	if dryRun {
		logger.Global.Info("Performing a dry run. No changes will be made.")
		sched = a.newScheduler(nil, nil, true)
	} else {
		bot, err := telegram.New(a.cfg.BotToken, a.store)
		if err != nil {
			return err
		}
		sched = a.newScheduler(bot, bot, false)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return sched.Tick(ctx)
}
