// Package chat owns the conversation state machine: one live model
// session whose context is kept in lockstep with the persisted message
// history.
package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/memorymate/companion/internal/apperrors"
	"github.com/memorymate/companion/internal/image"
	"github.com/memorymate/companion/internal/llm"
	"github.com/memorymate/companion/internal/profile"
	"github.com/memorymate/companion/internal/storage"
	"github.com/memorymate/companion/pkg/logger"
)

const historyKey = "chatHistory.json"

// describePrompt is the fixed instruction for the vision model.
const describePrompt = "Describe these images"

// Author identifies who wrote a message.
type Author string

const (
	AuthorUser  Author = "USER"
	AuthorAgent Author = "AGENT"
)

// Message is one turn of the conversation. The ordered sequence of
// messages is the History, persisted wholesale as a single document.
type Message struct {
	Author    Author      `json:"author"`
	Text      string      `json:"text"`
	Images    []image.Ref `json:"images"`
	Timestamp time.Time   `json:"timestamp"`
}

// Attachment is a gallery image accompanying an outgoing message: the
// capture metadata plus the raw bytes, which become durable app-owned
// artifacts once the message succeeds.
type Attachment struct {
	Ref  image.Ref
	Data []byte
}

// Session is the live conversation. It owns the single model session
// handle; all mutation goes through its methods. A mutex serializes
// them, keeping the persisted history in lockstep with the model
// session under concurrent callers.
type Session struct {
	client   llm.Client
	profiles *profile.Store
	images   *image.Store
	store    storage.Store
	log      logger.Logger

	mu   sync.Mutex
	chat llm.Chat
}

// NewSession opens the conversation. Both profiles must exist; the model
// session is seeded with the persona instruction and either the replayed
// persisted history or, on first run, a freshly persisted scripted
// greeting.
func NewSession(ctx context.Context, client llm.Client, profiles *profile.Store, images *image.Store, store storage.Store, log logger.Logger) (*Session, error) {
	agentExists, err := profiles.Has(ctx, profile.Agent)
	if err != nil {
		return nil, err
	}
	if !agentExists {
		return nil, apperrors.NewInvalidState("agent profile does not exist")
	}

	userExists, err := profiles.Has(ctx, profile.User)
	if err != nil {
		return nil, err
	}
	if !userExists {
		return nil, apperrors.NewInvalidState("user profile does not exist")
	}

	s := &Session{
		client:   client,
		profiles: profiles,
		images:   images,
		store:    store,
		log:      log,
	}

	agent, err := profiles.Get(ctx, profile.Agent)
	if err != nil {
		return nil, err
	}
	user, err := profiles.Get(ctx, profile.User)
	if err != nil {
		return nil, err
	}

	hasHistory, err := s.hasHistory(ctx)
	if err != nil {
		return nil, err
	}

	var turns []llm.Turn
	if hasHistory {
		history, err := s.loadHistory(ctx)
		if err != nil {
			return nil, err
		}
		for _, message := range history {
			turns = append(turns, llm.Turn{Role: roleFor(message.Author), Text: message.Text})
		}
	} else {
		first := Message{
			Author:    AuthorAgent,
			Text:      greeting(agent, user),
			Images:    []image.Ref{},
			Timestamp: now(),
		}
		turns = append(turns, llm.Turn{Role: llm.RoleModel, Text: first.Text})
		if err := s.save(ctx, []Message{first}); err != nil {
			return nil, err
		}
	}

	chat, err := client.StartChat(ctx, instruction(agent, user), turns)
	if err != nil {
		return nil, err
	}
	s.chat = chat

	log.Info("Conversation session opened",
		logger.BoolField("resumed", hasHistory),
		logger.IntField("replayed_turns", len(turns)))
	return s, nil
}

// SendMessage sends one user turn through the live session handle. The
// prompt the model sees is augmented with image descriptions and a
// timestamp annotation; the persisted message keeps the user's original
// text. History is only persisted after a full successful round trip.
func (s *Session) SendMessage(ctx context.Context, text string, attachments []Attachment) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, apperrors.NewInvalidArgument("message cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	timestamp := now()

	prompt := text + "\n"
	if len(attachments) > 0 {
		descriptions, err := s.describeAttachments(ctx, attachments)
		if err != nil {
			return Message{}, err
		}
		prompt += "Images sent: " + descriptions + "\n"
	}
	prompt += "Time sent: " + timestamp.UTC().Format(isoMillis)

	reply, err := s.chat.Send(ctx, prompt)
	if err != nil {
		return Message{}, err
	}

	saved := make([]image.Ref, 0, len(attachments))
	for _, attachment := range attachments {
		ref, err := s.images.SaveFromGallery(ctx, attachment.Ref, attachment.Data)
		if err != nil {
			return Message{}, err
		}
		saved = append(saved, ref)
	}

	var history []Message
	if exists, err := s.hasHistory(ctx); err != nil {
		return Message{}, err
	} else if exists {
		if history, err = s.loadHistory(ctx); err != nil {
			return Message{}, err
		}
	}

	response := Message{Author: AuthorAgent, Text: reply, Images: []image.Ref{}, Timestamp: now()}
	history = append(history,
		Message{Author: AuthorUser, Text: text, Images: saved, Timestamp: timestamp},
		response)

	if err := s.save(ctx, history); err != nil {
		return Message{}, err
	}
	return response, nil
}

// HasHistory reports whether a persisted history document exists.
func (s *Session) HasHistory(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasHistory(ctx)
}

// History loads the persisted message sequence.
func (s *Session) History(ctx context.Context) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadHistory(ctx)
}

func (s *Session) hasHistory(ctx context.Context) (bool, error) {
	return s.store.Has(ctx, historyKey)
}

func (s *Session) loadHistory(ctx context.Context) ([]Message, error) {
	raw, err := s.store.Get(ctx, historyKey)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewInvalidState("chat history does not exist")
		}
		return nil, err
	}

	var history []Message
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("failed to decode chat history: %w", err)
	}
	return history, nil
}

// DeleteHistory removes the history document and every image it
// references, then re-seeds the live session from a fresh
// instruction+greeting pair as on first-time initialization.
func (s *Session) DeleteHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.loadHistory(ctx)
	if err != nil {
		return err
	}

	var result error
	for _, message := range history {
		for _, ref := range message.Images {
			if err := s.images.Delete(ctx, ref); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	if result != nil {
		return result
	}

	if err := s.store.Delete(ctx, historyKey); err != nil {
		return err
	}

	agent, err := s.profiles.Get(ctx, profile.Agent)
	if err != nil {
		return err
	}
	user, err := s.profiles.Get(ctx, profile.User)
	if err != nil {
		return err
	}

	chat, err := s.client.StartChat(ctx, instruction(agent, user),
		[]llm.Turn{{Role: llm.RoleModel, Text: greeting(agent, user)}})
	if err != nil {
		return err
	}
	s.chat = chat

	s.log.Info("Chat history deleted, session re-seeded",
		logger.IntField("removed_messages", len(history)))
	return nil
}

// ImageDescriptions issues one multi-image description request for
// already-stored images.
func (s *Session) ImageDescriptions(ctx context.Context, refs []image.Ref) (string, error) {
	if len(refs) == 0 {
		return "", apperrors.NewInvalidArgument("no images are given")
	}

	inline := make([]llm.InlineImage, 0, len(refs))
	for _, ref := range refs {
		data, err := s.images.Load(ctx, ref)
		if err != nil {
			return "", err
		}
		inline = append(inline, llm.InlineImage{MIMEType: string(ref.MIMEType), Base64Data: data})
	}

	return s.client.DescribeImages(ctx, describePrompt, inline)
}

// describeAttachments describes not-yet-persisted gallery images from
// their in-memory bytes.
func (s *Session) describeAttachments(ctx context.Context, attachments []Attachment) (string, error) {
	inline := make([]llm.InlineImage, 0, len(attachments))
	for _, attachment := range attachments {
		inline = append(inline, llm.InlineImage{
			MIMEType:   string(attachment.Ref.MIMEType),
			Base64Data: base64.StdEncoding.EncodeToString(attachment.Data),
		})
	}
	return s.client.DescribeImages(ctx, describePrompt, inline)
}

// save persists the full history wholesale.
func (s *Session) save(ctx context.Context, history []Message) error {
	if len(history) == 0 {
		return apperrors.NewInvalidArgument("chat history cannot be empty")
	}

	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode chat history: %w", err)
	}
	return s.store.Set(ctx, historyKey, raw)
}

func roleFor(author Author) llm.Role {
	if author == AuthorUser {
		return llm.RoleUser
	}
	return llm.RoleModel
}

// isoMillis matches the millisecond-precision ISO form the history
// document uses for timestamps.
const isoMillis = "2006-01-02T15:04:05.000Z"

// now returns the current time truncated to milliseconds so persisted
// timestamps round-trip exactly.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
