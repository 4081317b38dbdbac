package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"quizdesk/internal/app"
	"quizdesk/internal/domain"
	"quizdesk/internal/infra/memory"
)

// fakeGateway grades by counting answers equal to "ok".
type fakeGateway struct {
	mu          sync.Mutex
	quizzes     map[int64]domain.Quiz
	submitErr   error
	submitCalls int
	submitted   [][]string
	// release, when set, blocks SubmitAnswers until closed.
	release chan struct{}
	entered chan struct{}

	artifact domain.Artifact
}

func newFakeGateway(quizzes ...domain.Quiz) *fakeGateway {
	g := &fakeGateway{quizzes: make(map[int64]domain.Quiz)}
	for _, q := range quizzes {
		g.quizzes[q.ID] = q
	}
	return g
}

func (g *fakeGateway) FetchQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	quiz, ok := g.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (g *fakeGateway) SubmitAnswers(_ context.Context, _ int64, answers []string) (domain.Result, error) {
	g.mu.Lock()
	g.submitCalls++
	g.submitted = append(g.submitted, answers)
	release, entered, err := g.release, g.entered, g.submitErr
	g.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return domain.Result{}, err
	}
	score := 0
	for _, a := range answers {
		if a == "ok" {
			score++
		}
	}
	return domain.Result{Score: score, Total: len(answers), HistoryID: 7}, nil
}

func (g *fakeGateway) ListQuizzes(context.Context) ([]domain.Quiz, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Quiz, 0, len(g.quizzes))
	for _, q := range g.quizzes {
		out = append(out, q)
	}
	return out, nil
}

func (g *fakeGateway) GenerateQuiz(_ context.Context, subject string, difficulty domain.Difficulty) (domain.Quiz, error) {
	return domain.Quiz{ID: 99, Subject: subject, Difficulty: difficulty}, nil
}

func (g *fakeGateway) ListHistory(context.Context) ([]domain.HistoryEntry, error) {
	return []domain.HistoryEntry{{ID: 7, Score: 3}}, nil
}

func (g *fakeGateway) ListCertificates(context.Context) ([]domain.CertificateSummary, error) {
	return []domain.CertificateSummary{{QuizSubject: "Arithmetic", Score: 3, HistoryID: 7}}, nil
}

func (g *fakeGateway) DownloadCertificate(context.Context, int64) (domain.Artifact, error) {
	return g.artifact, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitCalls
}

func threeQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:         1,
		Subject:    "Basic Arithmetic",
		Difficulty: domain.DifficultyEasy,
		Questions:  []domain.Question{{Text: "1+1?"}, {Text: "2+2?"}, {Text: "3+3?"}},
	}
}

func loadedSession(t *testing.T, gw *fakeGateway) *app.QuizSession {
	t.Helper()
	session := app.NewQuizSession(1, gw, gw)
	if err := session.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return session
}

func TestLoadSizesAnswerSet(t *testing.T) {
	for _, n := range []int{0, 1, 3, 12} {
		quiz := domain.Quiz{ID: 1, Subject: "s", Questions: make([]domain.Question, n)}
		session := loadedSession(t, newFakeGateway(quiz))
		if session.State() != app.StateReady {
			t.Fatalf("expected ready, got %s", session.State())
		}
		if got := len(session.Answers()); got != n {
			t.Fatalf("expected %d answers, got %d", n, got)
		}
		if session.Progress() != 0 {
			t.Fatalf("expected zero progress")
		}
	}
}

func TestLoadFailureAndRetry(t *testing.T) {
	gw := newFakeGateway()
	session := app.NewQuizSession(1, gw, gw)

	if err := session.Load(context.Background()); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if session.State() != app.StateFailed || !errors.Is(session.Err(), domain.ErrQuizNotFound) {
		t.Fatalf("expected failed state, got %s", session.State())
	}

	gw.quizzes[1] = threeQuestionQuiz()
	if err := session.Load(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if session.State() != app.StateReady {
		t.Fatalf("expected ready after retry, got %s", session.State())
	}
	if err := session.Load(context.Background()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected reload of ready session to be rejected, got %v", err)
	}
}

func TestSetAnswerAndProgress(t *testing.T) {
	session := loadedSession(t, newFakeGateway(threeQuestionQuiz()))

	if err := session.SetAnswer(0, "2"); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if err := session.SetAnswer(1, "   "); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if got := session.Progress(); got != 1.0/3.0 {
		t.Fatalf("expected progress 1/3, got %v", got)
	}
	for _, idx := range []int{-1, 3} {
		if err := session.SetAnswer(idx, "x"); !errors.Is(err, domain.ErrIndexOutOfRange) {
			t.Fatalf("index %d: expected out of range, got %v", idx, err)
		}
	}
	answers := session.Answers()
	answers[0] = "mutated"
	if session.Answers()[0] != "2" {
		t.Fatalf("Answers must return a copy")
	}
}

func TestSubmitRejectsIncompleteAnswersLocally(t *testing.T) {
	gw := newFakeGateway(threeQuestionQuiz())
	session := loadedSession(t, gw)
	_ = session.SetAnswer(0, "ok")
	_ = session.SetAnswer(1, "\t ")
	_ = session.SetAnswer(2, "ok")

	if _, err := session.Submit(context.Background()); !errors.Is(err, domain.ErrIncompleteAnswers) {
		t.Fatalf("expected incomplete answers, got %v", err)
	}
	if session.State() != app.StateReady {
		t.Fatalf("expected ready, got %s", session.State())
	}
	if gw.calls() != 0 {
		t.Fatalf("expected no submission sent")
	}
}

func TestSubmitFailureRevertsToReady(t *testing.T) {
	gw := newFakeGateway(threeQuestionQuiz())
	session := loadedSession(t, gw)
	for i := 0; i < 3; i++ {
		_ = session.SetAnswer(i, "ok")
	}
	gw.submitErr = domain.ErrNetwork

	if _, err := session.Submit(context.Background()); !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if session.State() != app.StateReady {
		t.Fatalf("expected ready, got %s", session.State())
	}
	if got := session.Answers(); got[2] != "ok" {
		t.Fatalf("expected answers kept, got %v", got)
	}

	gw.submitErr = nil
	result, err := session.Submit(context.Background())
	if err != nil || result.Score != 3 {
		t.Fatalf("expected retry to score, got %+v err=%v", result, err)
	}
}

func TestSubmitWhileSubmittingIsRejected(t *testing.T) {
	gw := newFakeGateway(threeQuestionQuiz())
	gw.release = make(chan struct{})
	gw.entered = make(chan struct{})
	session := loadedSession(t, gw)
	for i := 0; i < 3; i++ {
		_ = session.SetAnswer(i, "ok")
	}

	done := make(chan error, 1)
	go func() {
		_, err := session.Submit(context.Background())
		done <- err
	}()
	<-gw.entered

	if session.State() != app.StateSubmitting {
		t.Fatalf("expected submitting, got %s", session.State())
	}
	if _, err := session.Submit(context.Background()); !errors.Is(err, domain.ErrSubmitInProgress) {
		t.Fatalf("expected submit in progress, got %v", err)
	}
	if err := session.SetAnswer(0, "changed"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected answers frozen while submitting, got %v", err)
	}

	close(gw.release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gw.calls() != 1 {
		t.Fatalf("expected exactly one network call, got %d", gw.calls())
	}
	if session.State() != app.StateScored {
		t.Fatalf("expected scored, got %s", session.State())
	}
	if _, err := session.Submit(context.Background()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected scored to be terminal, got %v", err)
	}
}

func TestCloseDiscardsLateResult(t *testing.T) {
	gw := newFakeGateway(threeQuestionQuiz())
	gw.release = make(chan struct{})
	gw.entered = make(chan struct{})
	session := loadedSession(t, gw)
	for i := 0; i < 3; i++ {
		_ = session.SetAnswer(i, "ok")
	}

	done := make(chan error, 1)
	go func() {
		_, err := session.Submit(context.Background())
		done <- err
	}()
	<-gw.entered
	session.Close()
	close(gw.release)

	if err := <-done; !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
	if _, scored := session.Result(); scored {
		t.Fatalf("late result must not be applied")
	}
}

func TestSessionUsesQuizCache(t *testing.T) {
	gw := newFakeGateway(threeQuestionQuiz())
	cache := memory.NewQuizRepository(gw, 0)

	session := app.NewQuizSession(1, cache, gw)
	if err := session.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if session.Quiz().Subject != "Basic Arithmetic" {
		t.Fatalf("unexpected quiz %+v", session.Quiz())
	}
}
