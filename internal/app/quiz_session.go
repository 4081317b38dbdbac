package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"quizdesk/internal/domain"
)

// SessionState is the lifecycle position of a QuizSession.
type SessionState int

const (
	StateLoading SessionState = iota
	StateReady
	StateSubmitting
	StateScored
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateScored:
		return "scored"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// QuizSource loads quiz content (from cache/backend).
type QuizSource interface {
	FetchQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// Grader scores a complete answer set.
type Grader interface {
	SubmitAnswers(ctx context.Context, quizID int64, answers []string) (domain.Result, error)
}

// QuizSession is the answer state machine of one quiz attempt. A scored
// session is terminal; a new attempt needs a new session.
type QuizSession struct {
	quizID  int64
	quizzes QuizSource
	grader  Grader

	mu       sync.Mutex
	state    SessionState
	loading  bool
	closed   bool
	quiz     domain.Quiz
	answers  []string
	result   domain.Result
	err      error
	issued   bool
	certPath string
}

func NewQuizSession(quizID int64, quizzes QuizSource, grader Grader) *QuizSession {
	return &QuizSession{
		quizID:  quizID,
		quizzes: quizzes,
		grader:  grader,
		state:   StateLoading,
	}
}

// Load fetches the quiz. It runs from Loading and, as a retry, from Failed.
func (s *QuizSession) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.loading || (s.state != StateLoading && s.state != StateFailed) {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot load in state %s", domain.ErrInvalidState, state)
	}
	s.loading = true
	s.state = StateLoading
	s.err = nil
	s.mu.Unlock()

	quiz, err := s.quizzes.FetchQuiz(ctx, s.quizID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.closed {
		return domain.ErrSessionClosed
	}
	if err != nil {
		s.state = StateFailed
		s.err = err
		return err
	}
	s.quiz = quiz
	s.answers = make([]string, len(quiz.Questions))
	s.state = StateReady
	return nil
}

// SetAnswer replaces the answer for the question at index.
func (s *QuizSession) SetAnswer(index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return fmt.Errorf("%w: cannot answer in state %s", domain.ErrInvalidState, s.state)
	}
	if index < 0 || index >= len(s.answers) {
		return fmt.Errorf("%w: index %d not in [0, %d)", domain.ErrIndexOutOfRange, index, len(s.answers))
	}
	s.answers[index] = text
	return nil
}

// Submit sends the answer set for grading. Only one submission may be in
// flight; a failed submission returns the session to Ready with its answers.
func (s *QuizSession) Submit(ctx context.Context) (domain.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Result{}, domain.ErrSessionClosed
	}
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return domain.Result{}, domain.ErrSubmitInProgress
	case StateReady:
	default:
		state := s.state
		s.mu.Unlock()
		return domain.Result{}, fmt.Errorf("%w: cannot submit in state %s", domain.ErrInvalidState, state)
	}
	for i, answer := range s.answers {
		if strings.TrimSpace(answer) == "" {
			s.mu.Unlock()
			return domain.Result{}, fmt.Errorf("%w: question %d is unanswered", domain.ErrIncompleteAnswers, i+1)
		}
	}
	answers := append([]string(nil), s.answers...)
	s.state = StateSubmitting
	s.err = nil
	s.mu.Unlock()

	result, err := s.grader.SubmitAnswers(ctx, s.quizID, answers)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Result{}, domain.ErrSessionClosed
	}
	if err != nil {
		s.state = StateReady
		s.err = err
		return domain.Result{}, err
	}
	s.result = result
	s.state = StateScored
	return result, nil
}

// Close detaches the session; replies that arrive afterwards are discarded.
func (s *QuizSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *QuizSession) QuizID() int64 { return s.quizID }

func (s *QuizSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *QuizSession) Quiz() domain.Quiz {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiz
}

// Answers returns a copy of the current answer set.
func (s *QuizSession) Answers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.answers...)
}

// Progress is the share of answered questions in [0, 1].
func (s *QuizSession) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.answers) == 0 {
		return 0
	}
	answered := 0
	for _, answer := range s.answers {
		if strings.TrimSpace(answer) != "" {
			answered++
		}
	}
	return float64(answered) / float64(len(s.answers))
}

// Result is only meaningful once the session is Scored.
func (s *QuizSession) Result() (domain.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state == StateScored
}

// Err is the last load or submit failure.
func (s *QuizSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// claimCertificate reserves the single certificate render of this session.
func (s *QuizSession) claimCertificate() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issued {
		return s.certPath, false
	}
	s.issued = true
	return "", true
}

func (s *QuizSession) completeCertificate(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.issued = false
		return
	}
	s.certPath = path
}
