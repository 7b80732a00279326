// Package app wires the companion components together and owns the
// lifecycle of the single conversation session.
package app

import (
	"context"
	"fmt"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/memorymate/companion/internal/chat"
	"github.com/memorymate/companion/internal/config"
	"github.com/memorymate/companion/internal/image"
	"github.com/memorymate/companion/internal/llm"
	"github.com/memorymate/companion/internal/profile"
	"github.com/memorymate/companion/internal/quiz"
	"github.com/memorymate/companion/internal/storage"
	"github.com/memorymate/companion/pkg/logger"
)

// numUserMessagesForQuiz is the cadence of quiz offers: one every this
// many user messages.
const numUserMessagesForQuiz = 10

// App is the application context: the stores, the model client and the
// lazily opened conversation session. One App per process.
type App struct {
	log    logger.Logger
	client llm.Client
	store  storage.Store

	Profiles *profile.Store
	Images   *image.Store
	Quiz     *quiz.Engine

	mu      sync.Mutex
	session *chat.Session
}

// New assembles the application over the given model client and storage
// backend.
func New(client llm.Client, store storage.Store, log logger.Logger) *App {
	a := &App{
		log:      log,
		client:   client,
		store:    store,
		Profiles: profile.NewStore(store, log),
		Images:   image.NewStore(store, log),
	}
	a.Quiz = quiz.NewEngine(client, a, a.Profiles, store, log)
	return a
}

// Session returns the live conversation, opening it on first use. The
// open is guarded so concurrent callers share one session; it fails
// InvalidState until both profiles exist.
func (a *App) Session(ctx context.Context) (*chat.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return a.session, nil
	}

	session, err := chat.NewSession(ctx, a.client, a.Profiles, a.Images, a.store, a.log)
	if err != nil {
		return nil, err
	}
	a.session = session
	return session, nil
}

// History exposes the conversation to the quiz engine.
func (a *App) History(ctx context.Context) ([]chat.Message, error) {
	session, err := a.Session(ctx)
	if err != nil {
		return nil, err
	}
	return session.History(ctx)
}

// ShouldOfferQuiz reports whether the conversation has reached the next
// quiz checkpoint: every numUserMessagesForQuiz user messages.
func (a *App) ShouldOfferQuiz(ctx context.Context) (bool, error) {
	session, err := a.Session(ctx)
	if err != nil {
		return false, err
	}

	exists, err := session.HasHistory(ctx)
	if err != nil || !exists {
		return false, err
	}

	history, err := session.History(ctx)
	if err != nil {
		return false, err
	}

	userMessages := 0
	for _, message := range history {
		if message.Author == chat.AuthorUser {
			userMessages++
		}
	}
	return userMessages > 0 && userMessages%numUserMessagesForQuiz == 0, nil
}

// BuildStore selects the storage backend from configuration.
func BuildStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "local":
		return storage.NewFileStore(cfg.BaseDir), nil
	case "memory":
		return storage.NewMemoryStore(), nil
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		client := storage.NewAWSS3Client(s3.NewFromConfig(awsCfg))
		return storage.NewS3Store(cfg.S3Bucket, cfg.S3Prefix, client), nil
	}
	return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
}
