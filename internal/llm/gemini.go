package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/memorymate/companion/internal/apperrors"
	"github.com/memorymate/companion/internal/config"
	"github.com/memorymate/companion/pkg/logger"
	"github.com/memorymate/companion/pkg/metrics"
	"google.golang.org/genai"
)

// GeminiClient implements Client using Google Gemini. Separate model names
// are configurable for chat, vision and quiz generation.
type GeminiClient struct {
	client *genai.Client
	cfg    config.GeminiConfig
	log    logger.Logger
	m      *metrics.Metrics
}

// NewGeminiClient creates a Gemini-backed client. Metrics may be nil.
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig, log logger.Logger, m *metrics.Metrics) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		cfg:    cfg,
		log:    log,
		m:      m,
	}, nil
}

// StartChat opens a Gemini chat session seeded with the instruction block
// and prior turns. The instruction is replayed as the first user turn,
// matching how the persisted history was originally built up.
func (g *GeminiClient) StartChat(ctx context.Context, instruction string, history []Turn) (Chat, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	contents = append(contents, genai.NewContentFromText(instruction, genai.RoleUser))

	for _, turn := range history {
		contents = append(contents, genai.NewContentFromText(turn.Text, genaiRole(turn.Role)))
	}

	chat, err := g.client.Chats.Create(ctx, g.cfg.ChatModel, nil, contents)
	if err != nil {
		return nil, wrapModelError("failed to start chat session", err)
	}

	g.log.Debug("Started chat session",
		logger.StringField("model", g.cfg.ChatModel),
		logger.IntField("replayed_turns", len(history)))

	return &geminiChat{chat: chat, log: g.log, m: g.m}, nil
}

// DescribeImages sends one stateless multi-image description request to the
// vision-capable model.
func (g *GeminiClient) DescribeImages(ctx context.Context, prompt string, images []InlineImage) (string, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, genai.NewPartFromText(prompt))

	for _, img := range images {
		data, err := base64.StdEncoding.DecodeString(img.Base64Data)
		if err != nil {
			return "", apperrors.NewInvalidArgument("image payload is not valid base64: %v", err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, img.MIMEType))
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.VisionModel, contents, nil)
	g.observe("vision", start, err)
	if err != nil {
		return "", wrapModelError("failed to describe images", err)
	}

	g.log.Debug("Received image descriptions", logger.IntField("image_count", len(images)))
	return resp.Text(), nil
}

// Generate sends one stateless generation request to the quiz model.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.QuizModel, genai.Text(prompt), nil)
	g.observe("generate", start, err)
	if err != nil {
		return "", wrapModelError("generation request failed", err)
	}
	return resp.Text(), nil
}

func (g *GeminiClient) observe(kind string, start time.Time, err error) {
	if g.m != nil {
		g.m.ObserveModelCall(kind, time.Since(start), err)
	}
}

// geminiChat adapts *genai.Chat to the Chat interface.
type geminiChat struct {
	chat *genai.Chat
	log  logger.Logger
	m    *metrics.Metrics
}

// Send submits one user turn through the long-lived session handle.
func (c *geminiChat) Send(ctx context.Context, text string) (string, error) {
	c.log.Debug("Sending message to model", logger.IntField("length", len(text)))

	start := time.Now()
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if c.m != nil {
		c.m.ObserveModelCall("chat", time.Since(start), err)
	}
	if err != nil {
		return "", wrapModelError("failed to send message", err)
	}

	reply := resp.Text()
	c.log.Debug("Received model reply", logger.IntField("length", len(reply)))
	return reply, nil
}

// genaiRole converts a history turn role to the SDK's role type.
func genaiRole(role Role) genai.Role {
	if role == RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// wrapModelError maps a transport/response error from the model service
// into the domain HTTPError, keeping the best-available status code.
func wrapModelError(message string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewHTTPError(message, apiErr.Code, err)
	}
	return apperrors.NewHTTPError(message, http.StatusInternalServerError, err)
}
