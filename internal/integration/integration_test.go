package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"livequiz/internal/app"
	"livequiz/internal/domain"
	pginfra "livequiz/internal/infra/postgres"
	pgmigrations "livequiz/internal/infra/postgres/migrations"
	infraredis "livequiz/internal/infra/redis"
	"livequiz/internal/relay"
)

func TestLiveSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db, sampleQuiz())

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

	store := pginfra.NewStore(db)
	quizRepo := infraredis.NewQuizRepository(redisClient, pginfra.NewQuizLoader(pool), 5*time.Minute)
	index := infraredis.NewSessionIndex(redisClient, 5*time.Minute)
	rooms := relay.New()
	engine := app.NewEngine(store, quizRepo, rooms)

	host := app.Identity{UserID: "host-1"}
	alice := app.Identity{Name: "Alice"}
	bob := app.Identity{Name: "Bob"}

	session, err := engine.CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	index.Mark(ctx, session)
	if token, ok := index.TokenForCode(ctx, session.Code); !ok || token != session.Token {
		t.Fatalf("code index: got %q, %v", token, ok)
	}

	pa, err := engine.Join(ctx, session.Token, alice)
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := engine.Join(ctx, session.Token, bob); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	// Re-joining resolves to the same participant row.
	again, err := engine.Join(ctx, session.Token, alice)
	if err != nil || again.ID != pa.ID {
		t.Fatalf("alice re-join = %+v, %v", again, err)
	}

	run, err := engine.StartQuestion(ctx, session.Token, host, 1)
	if err != nil {
		t.Fatalf("start question: %v", err)
	}
	originalEnd := *run.EndsAt

	res, err := engine.SubmitAnswer(ctx, session.Token, alice, 1, "o2")
	if err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if !res.Correct || res.Points < 900 || res.Points > 1000 {
		t.Fatalf("alice result = %+v", res)
	}
	res, err = engine.SubmitAnswer(ctx, session.Token, bob, 1, "o1")
	if err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	if res.Correct || res.Points != 0 {
		t.Fatalf("bob result = %+v", res)
	}

	// Everyone answered, so the stored window closed early.
	closed, err := store.RunByOrder(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("run by order: %v", err)
	}
	if closed.EndsAt == nil || !closed.EndsAt.Before(originalEnd) {
		t.Fatalf("run not force-closed: %v vs %v", closed.EndsAt, originalEnd)
	}

	// The schema enforces one answer per participant even through fresh state.
	dup, err := engine.SubmitAnswer(ctx, session.Token, alice, 1, "o1")
	if err == nil && !dup.AlreadyAnswered {
		t.Fatalf("duplicate answer slipped through: %+v", dup)
	}

	board, err := engine.Leaderboard(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].Name != "Alice" || board[1].Name != "Bob" {
		t.Fatalf("leaderboard = %+v", board)
	}
	if board[0].Score < 900 || board[1].Score != 0 {
		t.Fatalf("scores = %+v", board)
	}

	if err := engine.Finish(ctx, session.Token, host); err != nil {
		t.Fatalf("finish: %v", err)
	}
	index.Clear(ctx, session)
	if _, ok := index.TokenForCode(ctx, session.Code); ok {
		t.Fatalf("code index survived finish")
	}
	status, err := engine.Status(ctx, session.Token)
	if err != nil || status.State != domain.StateFinished {
		t.Fatalf("status after finish = %+v, %v", status, err)
	}
}

func openBun(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:     "quiz-1",
		Title:  "Arithmetic",
		Jokers: 1,
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3", Correct: false},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5", Correct: false},
				},
				DurationSeconds: 20,
			},
			{
				ID:     "q2",
				Prompt: "What is 3 * 3?",
				Options: []domain.Option{
					{ID: "o4", Text: "9", Correct: true},
					{ID: "o5", Text: "6", Correct: false},
				},
				DurationSeconds: 15,
			},
		},
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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
		_ = container.Terminate(ctx)
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
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
