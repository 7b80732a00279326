package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/memorymate/companion/internal/apperrors"
	"github.com/memorymate/companion/internal/image"
	"github.com/memorymate/companion/internal/llm"
	"github.com/memorymate/companion/internal/profile"
	"github.com/memorymate/companion/internal/storage"
	"github.com/memorymate/companion/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	client   *llm.MockClient
	profiles *profile.Store
	images   *image.Store
	backend  storage.Store
	log      logger.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := storage.NewMemoryStore()
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Service: "test"})
	return &fixture{
		client:   llm.NewMockClient(),
		profiles: profile.NewStore(backend, log),
		images:   image.NewStore(backend, log),
		backend:  backend,
		log:      log,
	}
}

func (f *fixture) createProfiles(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.profiles.Create(ctx, profile.User, profile.Data{Name: "Margaret", Age: 78, Gender: profile.Female})
	require.NoError(t, err)
	_, err = f.profiles.Create(ctx, profile.Agent, profile.Data{Name: "Alice", Age: 30, Gender: profile.Female})
	require.NoError(t, err)
}

func (f *fixture) newSession(t *testing.T) *Session {
	t.Helper()
	session, err := NewSession(context.Background(), f.client, f.profiles, f.images, f.backend, f.log)
	require.NoError(t, err)
	return session
}

func TestNewSessionRequiresBothProfiles(t *testing.T) {
	ctx := context.Background()

	t.Run("no profiles", func(t *testing.T) {
		f := newFixture(t)
		_, err := NewSession(ctx, f.client, f.profiles, f.images, f.backend, f.log)
		assert.True(t, apperrors.IsInvalidState(err))
	})

	t.Run("only user profile", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.profiles.Create(ctx, profile.User, profile.Data{Name: "Margaret", Age: 78, Gender: profile.Female})
		require.NoError(t, err)

		_, err = NewSession(ctx, f.client, f.profiles, f.images, f.backend, f.log)
		assert.True(t, apperrors.IsInvalidState(err))
	})
}

func TestNewSessionSynthesizesGreeting(t *testing.T) {
	f := newFixture(t)
	f.createProfiles(t)
	session := f.newSession(t)

	history, err := session.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, AuthorAgent, history[0].Author)
	assert.Equal(t, "Hello, Margaret! I'm Alice and 30 years old. I'm here to chat with you. How are you today?", history[0].Text)
	assert.Empty(t, history[0].Images)

	// The model session is seeded with the persona instruction and the
	// greeting as its only prior turn.
	assert.Contains(t, f.client.StartedInstruction, "Margaret")
	assert.Contains(t, f.client.StartedInstruction, "Alice")
	assert.Contains(t, f.client.StartedInstruction, AppName)
	require.Len(t, f.client.StartedHistory, 1)
	assert.Equal(t, llm.RoleModel, f.client.StartedHistory[0].Role)
}

func TestNewSessionReplaysExistingHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)

	first := f.newSession(t)
	f.client.ChatReplies = []string{"Nice to meet you!"}
	_, err := first.SendMessage(ctx, "Hello there", nil)
	require.NoError(t, err)

	// A new session over the same storage replays greeting + both turns.
	resumed := f.newSession(t)
	require.Len(t, f.client.StartedHistory, 3)
	assert.Equal(t, llm.RoleModel, f.client.StartedHistory[0].Role)
	assert.Equal(t, llm.RoleUser, f.client.StartedHistory[1].Role)
	assert.Equal(t, "Hello there", f.client.StartedHistory[1].Text)
	assert.Equal(t, llm.RoleModel, f.client.StartedHistory[2].Role)

	history, err := resumed.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)
	session := f.newSession(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := session.SendMessage(ctx, text, nil)
		assert.True(t, apperrors.IsInvalidArgument(err))
	}
	assert.Empty(t, f.client.SentMessages, "no model call may happen for an empty message")
}

func TestSendMessageAppendsBothTurns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)
	session := f.newSession(t)

	f.client.ChatReplies = []string{"I'm doing great, thanks for asking!"}
	reply, err := session.SendMessage(ctx, "How are you?", nil)
	require.NoError(t, err)
	assert.Equal(t, AuthorAgent, reply.Author)
	assert.Equal(t, "I'm doing great, thanks for asking!", reply.Text)

	history, err := session.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, AuthorUser, history[1].Author)
	assert.Equal(t, "How are you?", history[1].Text)
	assert.Equal(t, reply, history[2])

	// The augmented prompt carries the timestamp annotation but the
	// persisted message keeps the raw text.
	require.Len(t, f.client.SentMessages, 1)
	assert.Contains(t, f.client.SentMessages[0], "How are you?")
	assert.Contains(t, f.client.SentMessages[0], "Time sent: ")
	assert.NotContains(t, history[1].Text, "Time sent:")
}

func TestSendMessageWithImages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)
	session := f.newSession(t)

	f.client.ChatReplies = []string{"What a lovely photo!"}
	f.client.DescribeReplies = []string{"A garden in summer."}

	attachment := Attachment{
		Ref:  image.Ref{Path: "gallery/garden.jpg", Width: 800, Height: 600, MIMEType: image.JPEG},
		Data: []byte("jpeg-bytes"),
	}
	_, err := session.SendMessage(ctx, "Look at this", []Attachment{attachment})
	require.NoError(t, err)

	require.Len(t, f.client.SentMessages, 1)
	assert.Contains(t, f.client.SentMessages[0], "Images sent: A garden in summer.")

	history, err := session.History(ctx)
	require.NoError(t, err)
	userMsg := history[1]
	require.Len(t, userMsg.Images, 1)
	assert.True(t, strings.HasPrefix(userMsg.Images[0].Path, image.Directory),
		"gallery paths must become durable app-owned paths")

	exists, err := f.images.Has(ctx, userMsg.Images[0])
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSendMessageConcurrentSendersLoseNoTurns(t *testing.T) {
	const senders = 64

	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)

	replies := make([]string, senders)
	for i := range replies {
		replies[i] = fmt.Sprintf("reply %d", i)
	}
	f.client.ChatReplies = replies

	session := f.newSession(t)

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := session.SendMessage(ctx, fmt.Sprintf("message %d", i), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Greeting plus one user/agent pair per sender: interleaved calls
	// must not overwrite each other's appended turns.
	history, err := session.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1+2*senders)
}

func TestSendMessageModelFailureLeavesNoState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)
	session := f.newSession(t)

	f.client.ChatReplies = nil // scripted mock fails the Send call

	_, err := session.SendMessage(ctx, "Hello", nil)
	require.Error(t, err)

	history, err := session.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1, "failed round trips must not be persisted")
}

func TestHistoryRoundTripsTimestamps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)
	session := f.newSession(t)

	f.client.ChatReplies = []string{"reply"}
	sent, err := session.SendMessage(ctx, "hi", nil)
	require.NoError(t, err)

	reloaded := f.newSession(t)
	history, err := reloaded.History(ctx)
	require.NoError(t, err)
	assert.True(t, history[2].Timestamp.Equal(sent.Timestamp),
		"timestamps must survive the round trip to the millisecond")
}

func TestHistoryMissingIsInvalidState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)
	session := f.newSession(t)

	require.NoError(t, f.backend.Delete(ctx, historyKey))

	_, err := session.History(ctx)
	assert.True(t, apperrors.IsInvalidState(err))
	assert.True(t, apperrors.IsInvalidState(session.DeleteHistory(ctx)))
}

func TestDeleteHistoryRemovesImagesAndReseeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)
	session := f.newSession(t)

	f.client.ChatReplies = []string{"nice"}
	f.client.DescribeReplies = []string{"a photo"}
	attachment := Attachment{
		Ref:  image.Ref{Path: "gallery/pic.png", Width: 1, Height: 1, MIMEType: image.PNG},
		Data: []byte("png"),
	}
	_, err := session.SendMessage(ctx, "look", []Attachment{attachment})
	require.NoError(t, err)

	history, err := session.History(ctx)
	require.NoError(t, err)
	ref := history[1].Images[0]

	require.NoError(t, session.DeleteHistory(ctx))

	exists, err := f.images.Has(ctx, ref)
	require.NoError(t, err)
	assert.False(t, exists, "every referenced image must be deleted")

	hasHistory, err := session.HasHistory(ctx)
	require.NoError(t, err)
	assert.False(t, hasHistory)

	// The live session was re-seeded from instruction + greeting.
	require.Len(t, f.client.StartedHistory, 1)
	assert.Equal(t, llm.RoleModel, f.client.StartedHistory[0].Role)
	assert.Contains(t, f.client.StartedHistory[0].Text, "Hello, Margaret!")
}

func TestImageDescriptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProfiles(t)
	session := f.newSession(t)

	_, err := session.ImageDescriptions(ctx, nil)
	assert.True(t, apperrors.IsInvalidArgument(err))

	saved, err := f.images.SaveFromGallery(ctx,
		image.Ref{Path: "gallery/dog.jpg", Width: 1, Height: 1, MIMEType: image.JPEG}, []byte("dog"))
	require.NoError(t, err)

	f.client.DescribeReplies = []string{"A small dog."}
	descriptions, err := session.ImageDescriptions(ctx, []image.Ref{saved})
	require.NoError(t, err)
	assert.Equal(t, "A small dog.", descriptions)

	require.Len(t, f.client.DescribedImages, 1)
	assert.Equal(t, string(image.JPEG), f.client.DescribedImages[0][0].MIMEType)
}
