package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/memorymate/companion/internal/apperrors"
	"github.com/memorymate/companion/internal/chat"
	"github.com/memorymate/companion/internal/llm"
	"github.com/memorymate/companion/internal/profile"
	"github.com/memorymate/companion/internal/storage"
	"github.com/memorymate/companion/pkg/logger"
)

const (
	quizKey = "quiz.json"

	numQuestions = 10
	numChoices   = 4
)

// HistorySource provides the conversation the quiz draws from.
type HistorySource interface {
	History(ctx context.Context) ([]chat.Message, error)
}

// Engine creates quizzes from the conversation and manages the single
// saved quiz document.
type Engine struct {
	client   llm.Client
	history  HistorySource
	profiles *profile.Store
	store    storage.Store
	log      logger.Logger
}

// NewEngine wires a quiz engine.
func NewEngine(client llm.Client, history HistorySource, profiles *profile.Store, store storage.Store, log logger.Logger) *Engine {
	return &Engine{
		client:   client,
		history:  history,
		profiles: profiles,
		store:    store,
		log:      log,
	}
}

// redactedMessage is the history projection sent to the model: author
// and text only, no images or timestamps.
type redactedMessage struct {
	Author chat.Author `json:"author"`
	Text   string      `json:"text"`
}

func redact(history []chat.Message) []redactedMessage {
	redacted := make([]redactedMessage, 0, len(history))
	for _, message := range history {
		redacted = append(redacted, redactedMessage{Author: message.Author, Text: message.Text})
	}
	return redacted
}

// Create evaluates the patient from the full history and previous quiz,
// then generates a fresh quiz from the evaluation and the history minus
// the most recent turn pair. The result replaces any saved quiz.
func (e *Engine) Create(ctx context.Context) ([]*Question, error) {
	history, err := e.history.History(ctx)
	if err != nil {
		return nil, err
	}

	evaluation, err := e.evaluate(ctx, history)
	if err != nil {
		return nil, err
	}

	// Drop the most recent turn pair; shorter histories redact to empty.
	redacted := redact(history)
	if len(redacted) < 2 {
		redacted = redacted[:0]
	} else {
		redacted = redacted[:len(redacted)-2]
	}

	payload, err := json.Marshal(struct {
		ChatHistory []redactedMessage `json:"chatHistory"`
		Evaluation  string            `json:"evaluation"`
	}{ChatHistory: redacted, Evaluation: evaluation})
	if err != nil {
		return nil, fmt.Errorf("failed to encode quiz request: %w", err)
	}

	example, err := json.Marshal(questionJSON{
		Question:      "What was the name of the flower you like to grow?",
		Difficulty:    Normal,
		CorrectAnswer: 0,
		Choices:       []string{"Tiger lily", "Rose", "Daisy", "Sunflower"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode example question: %w", err)
	}

	request := string(payload) + "\n" +
		fmt.Sprintf("From the chat history between the patient (%s) and a consultant (%s), ", chat.AuthorUser, chat.AuthorAgent) +
		"create multiple-choice questions for the patient's cognitive exercise from the chat history with " +
		"the proper mixture of difficulties tailored to their dementia level. The questions must be designed to " +
		"stimulate various cognitive functions, ensuring the patient receives targeted and effective cognitive " +
		"stimulation. Do not create questions that can't be answered without guessing. Any ordinary person should be " +
		"able to answer them while reading the chat history. There must be no questions asking the consultant's name. " +
		"The entire output must be formatted as a minified JSON without any additional white spaces, with an array of " +
		fmt.Sprintf("%d questions with exactly %d choices, its difficulty level between 1 and %d ", numQuestions, numChoices, numDifficulties) +
		"and an index to the correct choice. " +
		"Questions must be in past tense and formatted as if the consultant is asking the patient and " +
		"the patient is making a choice. For example, the following is a valid format of a question object: " +
		string(example) + ". Start your output with an open square bracket"

	response, err := e.client.Generate(ctx, request)
	if err != nil {
		return nil, err
	}

	questions, err := parseQuiz(stripFence(response))
	if err != nil {
		return nil, err
	}

	if err := e.Save(ctx, questions); err != nil {
		return nil, err
	}

	e.log.Info("Created quiz", logger.IntField("questions", len(questions)))
	return questions, nil
}

// evaluate asks the model for a free-text cognitive evaluation from the
// full history and the previous quiz results. The output is passed along
// unparsed.
func (e *Engine) evaluate(ctx context.Context, history []chat.Message) (string, error) {
	previous := []*Question{}
	if exists, err := e.HasSavedQuiz(ctx); err != nil {
		return "", err
	} else if exists {
		if previous, err = e.SavedQuiz(ctx); err != nil {
			return "", err
		}
	}

	payload, err := json.Marshal(struct {
		ChatHistory  []redactedMessage `json:"chatHistory"`
		PreviousQuiz []*Question       `json:"previousQuiz"`
	}{ChatHistory: redact(history), PreviousQuiz: previous})
	if err != nil {
		return "", fmt.Errorf("failed to encode evaluation request: %w", err)
	}

	user, err := e.profiles.Get(ctx, profile.User)
	if err != nil {
		return "", err
	}

	request := string(payload) + "\n" +
		"From the chat history between the patient and a consultant and the result of the previous quiz, " +
		"try your best to evaluate their dementia level, considering their cognitive abilities, and behavioural and " +
		fmt.Sprintf("psychological symptoms. The patient's age is %d and gender is %s. ", user.Age, user.Gender) +
		"Your output should consist of paragraphs"

	return e.client.Generate(ctx, request)
}

// HasSavedQuiz reports whether a quiz document exists.
func (e *Engine) HasSavedQuiz(ctx context.Context) (bool, error) {
	return e.store.Has(ctx, quizKey)
}

// SavedQuiz loads the persisted quiz.
func (e *Engine) SavedQuiz(ctx context.Context) ([]*Question, error) {
	raw, err := e.store.Get(ctx, quizKey)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewInvalidState("no saved quiz found")
		}
		return nil, err
	}

	var questions []*Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode saved quiz: %w", err)
	}
	return questions, nil
}

// Save persists the quiz, replacing any prior document.
func (e *Engine) Save(ctx context.Context, questions []*Question) error {
	raw, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("failed to encode quiz: %w", err)
	}
	return e.store.Set(ctx, quizKey, raw)
}

// Delete removes the saved quiz.
func (e *Engine) Delete(ctx context.Context) error {
	err := e.store.Delete(ctx, quizKey)
	if apperrors.IsNotFound(err) {
		return apperrors.NewInvalidState("no saved quiz found")
	}
	return err
}

// parseQuiz turns the raw model output into validated questions. The
// whole array is schema-checked before any question is constructed, so
// a single bad entry rejects the entire response.
func parseQuiz(response string) ([]*Question, error) {
	var projections []questionJSON
	if err := json.Unmarshal([]byte(response), &projections); err != nil {
		return nil, apperrors.NewHTTPError(
			fmt.Sprintf("failed to parse the response into json: %s", response), http.StatusBadRequest, err)
	}

	for _, projection := range projections {
		if err := projection.validate(); err != nil {
			return nil, apperrors.NewHTTPError(
				fmt.Sprintf("invalid question in response: %v", err), http.StatusBadRequest, err)
		}
	}

	questions := make([]*Question, 0, len(projections))
	for _, projection := range projections {
		question, err := NewQuestion(projection.Question, projection.Difficulty, projection.Choices, projection.CorrectAnswer)
		if err != nil {
			return nil, apperrors.NewHTTPError(
				fmt.Sprintf("invalid question in response: %v", err), http.StatusBadRequest, err)
		}
		if projection.Answer != nil {
			if err := question.SetAnswer(*projection.Answer); err != nil {
				return nil, err
			}
		}
		questions = append(questions, question)
	}
	return questions, nil
}

// stripFence removes a markdown code fence the model sometimes wraps
// its JSON output in.
func stripFence(response string) string {
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}
