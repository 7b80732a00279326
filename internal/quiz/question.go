// Package quiz generates and persists multiple-choice cognitive
// exercises derived from the conversation history.
package quiz

import (
	"encoding/json"

	"github.com/memorymate/companion/internal/apperrors"
)

// Difficulty grades a question from 1 (easy) to 3 (hard).
type Difficulty int

const (
	Easy   Difficulty = 1
	Normal Difficulty = 2
	Hard   Difficulty = 3

	numDifficulties = 3
)

// Question is one multiple-choice exercise. It moves from unanswered to
// answered exactly once; answering again or reading the answer before
// one is set fails InvalidState.
type Question struct {
	text          string
	difficulty    Difficulty
	choices       []string
	correctAnswer int

	answer *int
}

// questionJSON is the persisted and model-facing projection.
type questionJSON struct {
	Question      string     `json:"question"`
	Difficulty    Difficulty `json:"difficulty"`
	CorrectAnswer int        `json:"correctAnswer"`
	Choices       []string   `json:"choices"`
	Answer        *int       `json:"answer,omitempty"`
	IsCorrect     *bool      `json:"isCorrect,omitempty"`
}

func (q questionJSON) validate() error {
	if q.Question == "" {
		return apperrors.NewInvalidArgument("question text cannot be empty")
	}
	if q.Difficulty < 1 || q.Difficulty > numDifficulties {
		return apperrors.NewInvalidArgument("difficulty out of range: %d", q.Difficulty)
	}
	if len(q.Choices) == 0 {
		return apperrors.NewInvalidArgument("question has no choices")
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Choices) {
		return apperrors.NewInvalidArgument("correct answer index out of range: %d", q.CorrectAnswer)
	}
	if q.Answer != nil && (*q.Answer < 0 || *q.Answer >= len(q.Choices)) {
		return apperrors.NewInvalidArgument("answer index out of range: %d", *q.Answer)
	}
	return nil
}

// NewQuestion constructs a validated, unanswered question.
func NewQuestion(text string, difficulty Difficulty, choices []string, correctAnswer int) (*Question, error) {
	projection := questionJSON{
		Question:      text,
		Difficulty:    difficulty,
		CorrectAnswer: correctAnswer,
		Choices:       choices,
	}
	if err := projection.validate(); err != nil {
		return nil, err
	}
	return &Question{
		text:          text,
		difficulty:    difficulty,
		choices:       append([]string(nil), choices...),
		correctAnswer: correctAnswer,
	}, nil
}

// Text returns the question text.
func (q *Question) Text() string { return q.text }

// Difficulty returns the difficulty grade.
func (q *Question) Difficulty() Difficulty { return q.difficulty }

// Choices returns the possible answers.
func (q *Question) Choices() []string {
	return append([]string(nil), q.choices...)
}

// IsAnswered reports whether an answer has been recorded.
func (q *Question) IsAnswered() bool { return q.answer != nil }

// Answer returns the recorded answer index.
func (q *Question) Answer() (int, error) {
	if !q.IsAnswered() {
		return 0, apperrors.NewInvalidState("question is not answered")
	}
	return *q.answer, nil
}

// SetAnswer records the patient's choice. Answering twice or picking an
// out-of-range choice is an invalid transition.
func (q *Question) SetAnswer(choice int) error {
	if q.IsAnswered() {
		return apperrors.NewInvalidState("question is already answered")
	}
	if choice < 0 || choice >= len(q.choices) {
		return apperrors.NewInvalidState("invalid answer choice: %d", choice)
	}
	q.answer = &choice
	return nil
}

// IsCorrect reports whether the recorded answer matches.
func (q *Question) IsCorrect() (bool, error) {
	if !q.IsAnswered() {
		return false, apperrors.NewInvalidState("question is not answered")
	}
	return *q.answer == q.correctAnswer, nil
}

// MarshalJSON projects the question into its canonical document form.
// Answer and correctness only appear once the question is answered.
func (q *Question) MarshalJSON() ([]byte, error) {
	projection := questionJSON{
		Question:      q.text,
		Difficulty:    q.difficulty,
		CorrectAnswer: q.correctAnswer,
		Choices:       q.choices,
	}
	if q.IsAnswered() {
		projection.Answer = q.answer
		correct := *q.answer == q.correctAnswer
		projection.IsCorrect = &correct
	}
	return json.Marshal(projection)
}

// UnmarshalJSON rebuilds a question, rehydrating a recorded answer.
func (q *Question) UnmarshalJSON(data []byte) error {
	var projection questionJSON
	if err := json.Unmarshal(data, &projection); err != nil {
		return err
	}
	if err := projection.validate(); err != nil {
		return err
	}

	q.text = projection.Question
	q.difficulty = projection.Difficulty
	q.choices = projection.Choices
	q.correctAnswer = projection.CorrectAnswer
	q.answer = projection.Answer
	return nil
}
