package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"quizdesk/internal/app"
	"quizdesk/internal/auth"
	"quizdesk/internal/certificate"
	"quizdesk/internal/config"
	"quizdesk/internal/domain"
	"quizdesk/internal/gateway"
	"quizdesk/internal/identity"
	"quizdesk/internal/infra/memory"
	infraredis "quizdesk/internal/infra/redis"
	"quizdesk/internal/scoring"
	"quizdesk/internal/storage"
)

type keyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// deps is the object graph shared by the commands.
type deps struct {
	cfg     config.Config
	bridge  *auth.Bridge
	service *app.QuizService
	issuer  *app.CertificateIssuer
	redis   *redis.Client
}

func loadDeps(ctx context.Context, path string) (*deps, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return newDeps(ctx, cfg)
}

// newDeps wires the client and restores the persisted session. Without
// Redis the token and identity slots only live as long as the process.
func newDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	if cfg.Identity.APIKey == "" {
		return nil, errors.New("identity.api_key is not set (or QUIZDESK_IDENTITY_API_KEY)")
	}
	httpClient := &http.Client{Timeout: config.TTLDuration(cfg.Gateway.Timeout, 0)}

	var redisClient *redis.Client
	var slots keyValueStore = memory.NewKVStore()
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		slots = infraredis.NewKVStore(redisClient, "", config.TTLDuration(cfg.Redis.TTL, 0))
	}

	provider, err := identity.NewFirebaseProvider(identity.Options{
		APIKey:     cfg.Identity.APIKey,
		BaseURL:    cfg.Identity.BaseURL,
		TokenURL:   cfg.Identity.TokenURL,
		HTTPClient: httpClient,
		Store:      slots,
	})
	if err != nil {
		return nil, err
	}

	client := gateway.NewClient(cfg.Gateway.BaseURL, httpClient)
	bridge := auth.NewBridge(client, provider, slots)
	authed := client.WithTokenSource(bridge)

	quizTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var quizzes app.QuizSource
	if redisClient != nil {
		quizzes = infraredis.NewQuizRepository(redisClient, authed, quizTTL)
	} else {
		quizzes = memory.NewQuizRepository(authed, quizTTL)
	}

	store, err := storage.NewFSStore(cfg.Certificate.OutputDir)
	if err != nil {
		bridge.Close()
		return nil, err
	}
	renderer := certificate.NewRenderer(store, certificate.Options{
		PageSize:    cfg.Certificate.PageSize,
		Orientation: cfg.Certificate.Orientation,
		Scale:       cfg.Certificate.Scale,
	})

	d := &deps{
		cfg:     cfg,
		bridge:  bridge,
		service: app.NewQuizService(authed, quizzes, store, bridge),
		issuer:  app.NewCertificateIssuer(scoring.New(cfg.Certificate.PassThreshold), renderer),
		redis:   redisClient,
	}
	bridge.Start(ctx)
	return d, nil
}

func (d *deps) Close() {
	d.bridge.Close()
	if d.redis != nil {
		_ = d.redis.Close()
	}
}

// ensureSession signs in with QUIZ_EMAIL/QUIZ_PASSWORD when no session was
// restored.
func (d *deps) ensureSession(ctx context.Context) error {
	if err := d.bridge.Require(); err == nil {
		return nil
	}
	email, password := os.Getenv("QUIZ_EMAIL"), os.Getenv("QUIZ_PASSWORD")
	if email == "" || password == "" {
		return fmt.Errorf("%w: run `quizdesk login` or set QUIZ_EMAIL and QUIZ_PASSWORD", domain.ErrUnauthenticated)
	}
	_, err := d.bridge.Login(ctx, email, password)
	return err
}

// withSession loads the dependencies, makes sure a session exists and runs fn.
func withSession(ctx context.Context, path string, fn func(d *deps) error) error {
	d, err := loadDeps(ctx, path)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.ensureSession(ctx); err != nil {
		return err
	}
	return fn(d)
}
