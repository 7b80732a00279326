package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted Client for tests. Replies are consumed in
// order per capability; when a script runs out the zero reply is an error.
type MockClient struct {
	mu sync.Mutex

	// ChatReplies are returned by successive Send calls on any chat
	// started from this client.
	ChatReplies []string
	// DescribeReplies are returned by successive DescribeImages calls.
	DescribeReplies []string
	// GenerateReplies are returned by successive Generate calls.
	GenerateReplies []string

	// Err, when set, is returned by every call.
	Err error

	// Recorded inputs for assertions.
	StartedInstruction string
	StartedHistory     []Turn
	SentMessages       []string
	DescribePrompts    []string
	DescribedImages    [][]InlineImage
	GeneratePrompts    []string

	chatIdx     int
	describeIdx int
	generateIdx int
}

// NewMockClient builds an empty mock; populate the reply scripts before use.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) StartChat(_ context.Context, instruction string, history []Turn) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.StartedInstruction = instruction
	m.StartedHistory = append([]Turn(nil), history...)
	return &mockChat{client: m}, nil
}

func (m *MockClient) DescribeImages(_ context.Context, prompt string, images []InlineImage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.DescribePrompts = append(m.DescribePrompts, prompt)
	m.DescribedImages = append(m.DescribedImages, append([]InlineImage(nil), images...))
	if m.describeIdx >= len(m.DescribeReplies) {
		return "", fmt.Errorf("mock: no scripted describe reply for call %d", m.describeIdx+1)
	}
	reply := m.DescribeReplies[m.describeIdx]
	m.describeIdx++
	return reply, nil
}

func (m *MockClient) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.GeneratePrompts = append(m.GeneratePrompts, prompt)
	if m.generateIdx >= len(m.GenerateReplies) {
		return "", fmt.Errorf("mock: no scripted generate reply for call %d", m.generateIdx+1)
	}
	reply := m.GenerateReplies[m.generateIdx]
	m.generateIdx++
	return reply, nil
}

type mockChat struct {
	client *MockClient
}

func (c *mockChat) Send(_ context.Context, text string) (string, error) {
	m := c.client
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.SentMessages = append(m.SentMessages, text)
	if m.chatIdx >= len(m.ChatReplies) {
		return "", fmt.Errorf("mock: no scripted chat reply for call %d", m.chatIdx+1)
	}
	reply := m.ChatReplies[m.chatIdx]
	m.chatIdx++
	return reply, nil
}
