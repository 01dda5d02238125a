package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizgame-service/internal/config"
	"quizgame-service/internal/events"
	"quizgame-service/internal/game"
	"quizgame-service/internal/infra/memory"
	natsbus "quizgame-service/internal/infra/nats"
	"quizgame-service/internal/infra/postgres"
	redisinfra "quizgame-service/internal/infra/redis"
	transport "quizgame-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var (
		store   game.Store
		library game.Library
		loader  memory.QuizLoader
	)
	if cfg.Postgres.URL != "" {
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := runMigrations(ctx, db, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		pgStore := postgres.NewStore(db)
		store, library, loader = pgStore, pgStore, postgres.NewQuizLoader(pool)
	} else {
		memStore := memory.NewStore()
		ids, err := seed(ctx, memStore)
		if err != nil {
			return err
		}
		log.Info("using in-memory store with demo data", "quiz", ids.quiz, "host", ids.host, "group", ids.group)
		store, library, loader = memStore, memStore, memStore
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var bank game.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewQuizRepository(redisClient, loader, quizTTL, log)
	} else {
		bank = memory.NewQuizRepository(loader, quizTTL)
	}

	var locks game.Locker = memory.NewLocker()
	if redisClient != nil {
		locks = redisinfra.NewLocker(redisClient, config.TTLDuration(cfg.Game.LockTTL, 10*time.Second), log)
	}

	hub := events.NewHub(log)
	publishers := events.Fanout{}
	switch {
	case cfg.Events.Backend == "redis" && redisClient != nil:
		bus := redisinfra.NewEventBus(redisClient, cfg.Redis.Channel, log)
		if err := bus.StartForwarder(ctx, hub.Deliver); err != nil {
			return err
		}
		publishers = append(publishers, bus)
	default:
		publishers = append(publishers, hub)
	}
	if cfg.Nats.URL != "" {
		conn, err := natsbus.Connect(cfg.Nats.URL, cfg.Nats.Token)
		if err != nil {
			return err
		}
		pub := natsbus.NewPublisher(conn, cfg.Nats.Prefix, log)
		defer pub.Close()
		publishers = append(publishers, pub)
	}

	engine := game.NewEngine(store, bank, locks, publishers, game.Config{
		CanJoinStartedGame: cfg.Game.CanJoinStartedGame,
		AnswerGrace:        config.TTLDuration(cfg.Game.AnswerGrace, 2*time.Second),
	}, log, game.WithLibrary(library))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(engine, hub, log, cfg.Server.RateLimit),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting game service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}
