package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/events"
	"quizgame-service/internal/game"
	"quizgame-service/internal/infra/postgres"
	pgmigrations "quizgame-service/internal/infra/postgres/migrations"
	infraredis "quizgame-service/internal/infra/redis"
	"quizgame-service/internal/logger"
	"quizgame-service/internal/quizbank"
)

func TestGameEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openMigrated(t, ctx, pgURL)
	defer db.Close()
	store := postgres.NewStore(db)

	host, err := store.CreateUser(ctx, "host")
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	alice, _ := store.CreateUser(ctx, "alice")
	bob, _ := store.CreateUser(ctx, "bob")
	org, _ := store.CreateOrganization(ctx, "acme")
	group, err := store.CreateGroup(ctx, org.ID, "team")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	draft, err := quizbank.Build(quizbank.Sample(host.ID), time.Now())
	if err != nil {
		t.Fatalf("build quiz: %v", err)
	}
	quiz, err := store.CreateQuiz(ctx, draft)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	log := logger.Nop()
	bank := infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute, log)
	locks := infraredis.NewLocker(redisClient, 5*time.Second, log)
	bus := infraredis.NewEventBus(redisClient, "game-events-test", log)
	hub := events.NewHub(log)
	if err := bus.StartForwarder(ctx, hub.Deliver); err != nil {
		t.Fatalf("forwarder: %v", err)
	}

	engine := game.NewEngine(store, bank, locks, bus, game.Config{AnswerGrace: 2 * time.Second}, log, game.WithLibrary(store))

	g, err := engine.Create(ctx, game.CreateGame{QuizID: quiz.ID, HostID: host.ID, Label: "friday", GroupID: &group.ID})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if len(g.Pin) != 6 || g.State != domain.StatePlayersWaiting {
		t.Fatalf("unexpected game %+v", g)
	}

	feed, unsubscribe := hub.Subscribe(g.ID, events.Joined)
	defer unsubscribe()

	_, pAlice, err := engine.JoinByPin(ctx, g.Pin, alice.ID)
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := engine.Join(ctx, g.ID, bob.ID); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case e := <-feed:
			if e.GameID != g.ID {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("joined event %d not forwarded", i+1)
		}
	}

	q1, err := engine.NextQuestion(ctx, g.ID, 0)
	if err != nil || q1 == nil || q1.Number() != 1 {
		t.Fatalf("next question: %v %+v", err, q1)
	}
	if again, err := engine.NextQuestion(ctx, g.ID, 0); err != nil || again.ID != q1.ID {
		t.Fatalf("duplicate advance must not move on: %v %+v", err, again)
	}

	correct := q1.Answer()
	if _, err := engine.Submit(ctx, game.Submission{GameID: g.ID, UserID: alice.ID, Answer: correct}); err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	var wrong int64
	for _, v := range q1.Question.Variants {
		if v.ID != correct[0] {
			wrong = v.ID
			break
		}
	}
	if _, err := engine.Submit(ctx, game.Submission{GameID: g.ID, UserID: bob.ID, Answer: []int64{wrong}}); err != nil {
		t.Fatalf("submit bob: %v", err)
	}

	rating, err := engine.Rating(ctx, g.ID)
	if err != nil {
		t.Fatalf("rating: %v", err)
	}
	if len(rating) != 2 || rating[0].ID != pAlice.ID || !rating[0].Rating.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected rating %+v", rating)
	}

	if err := engine.Finish(ctx, g.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	final, err := engine.Game(ctx, g.ID)
	if err != nil || !final.Finished() {
		t.Fatalf("expected finished game: %v %+v", err, final)
	}
	if _, err := engine.JoinByPin(ctx, g.Pin, host.ID); err == nil {
		t.Fatalf("finished game must not be joinable by pin")
	}

	played, err := engine.PlayedGames(ctx, alice.ID, false)
	if err != nil || len(played) != 1 || played[0].ID != g.ID {
		t.Fatalf("played games: %v %+v", err, played)
	}
}

func openMigrated(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(context.Background())
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(context.Background())
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
