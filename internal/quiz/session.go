package quiz

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"faq-rag/internal/apperror"
	"faq-rag/internal/models"
)

type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// Session is the quiz state of one user. The zero value is an idle session.
type Session struct {
	State     State    `json:"state"`
	Question  string   `json:"question,omitempty"`
	Reference string   `json:"reference,omitempty"`
	Answer    string   `json:"answer,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Band      Band     `json:"band,omitempty"`
}

// Active reports whether a question is waiting for an answer.
func (s *Session) Active() bool {
	return s.State == StateActive
}

// Reset clears everything and returns to idle.
func (s *Session) Reset() {
	*s = Session{State: StateIdle}
}

type QuestionSource interface {
	NextQuestion(ctx context.Context) (string, error)
}

type Answerer interface {
	Query(ctx context.Context, question string) (models.Answer, error)
}

type Scorer interface {
	Score(ctx context.Context, reference, candidate string) (float64, error)
	Band(score float64) Band
}

// Quiz drives the idle/active state machine. It keeps no state of its own.
type Quiz struct {
	questions QuestionSource
	answerer  Answerer
	scorer    Scorer
}

func NewQuiz(questions QuestionSource, answerer Answerer, scorer Scorer) *Quiz {
	return &Quiz{questions: questions, answerer: answerer, scorer: scorer}
}

// Start asks a new question and computes its reference answer. Starting while
// active replaces the current question. On error the session is left as it was.
func (q *Quiz) Start(ctx context.Context, s *Session) error {
	question, err := q.questions.NextQuestion(ctx)
	if err != nil {
		return err
	}
	reference, err := q.answerer.Query(ctx, question)
	if err != nil {
		return err
	}

	*s = Session{
		State:     StateActive,
		Question:  question,
		Reference: reference.Text,
	}
	log.Debug().Str("question", question).Msg("Quiz started")
	return nil
}

// Submit scores answer against the reference. A blank answer is rejected and
// nothing is scored; the session stays active either way.
func (q *Quiz) Submit(ctx context.Context, s *Session, answer string) error {
	if !s.Active() {
		return apperror.Wrap(apperror.CodeQuizInactive, "no quiz in progress", nil)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		log.Warn().Msg("Empty quiz answer rejected")
		return apperror.Wrap(apperror.CodeInvalidInput, "please enter an answer", nil)
	}

	score, err := q.scorer.Score(ctx, s.Reference, answer)
	if err != nil {
		return err
	}
	s.Answer = answer
	s.Score = &score
	s.Band = q.scorer.Band(score)
	log.Debug().Float64("score", score).Str("band", string(s.Band)).Msg("Quiz answer scored")
	return nil
}

// End clears all quiz state.
func (q *Quiz) End(s *Session) {
	s.Reset()
}
