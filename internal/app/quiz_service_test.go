package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizdesk/internal/app"
	"quizdesk/internal/domain"
	"quizdesk/internal/scoring"
)

type countingRenderer struct {
	calls int
	err   error
	last  domain.Certificate
}

func (r *countingRenderer) Render(_ context.Context, cert domain.Certificate, _ domain.Verdict) (string, error) {
	r.calls++
	r.last = cert
	if r.err != nil {
		return "", r.err
	}
	return "/tmp/certificate.pdf", nil
}

type savedArtifact struct {
	name string
	data []byte
}

type recordingStore struct {
	saved []savedArtifact
}

func (s *recordingStore) Save(name string, data []byte) (string, error) {
	s.saved = append(s.saved, savedArtifact{name: name, data: data})
	return "/downloads/" + name, nil
}

type staticGuard struct{ err error }

func (g staticGuard) Require() error { return g.err }

var issueDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestEndToEndPassIssuesCertificateOnce(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(threeQuestionQuiz())
	service := app.NewQuizService(gw, nil, &recordingStore{}, staticGuard{})
	renderer := &countingRenderer{}
	issuer := app.NewCertificateIssuerWithClock(scoring.New(scoring.DefaultPassThreshold), renderer, func() time.Time { return issueDate })

	session, err := service.StartSession(ctx, 1)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if len(session.Answers()) != 3 {
		t.Fatalf("expected 3 answers, got %d", len(session.Answers()))
	}
	for i := 0; i < 3; i++ {
		if err := session.SetAnswer(i, "ok"); err != nil {
			t.Fatalf("set answer: %v", err)
		}
	}
	result, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 3 || result.Total != 3 {
		t.Fatalf("unexpected result %+v", result)
	}

	identity := &domain.Identity{UID: "uid-1", Email: "ada@example.com", DisplayName: "Ada"}
	issuance, err := issuer.Issue(ctx, session, identity)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issuance.Verdict != (domain.Verdict{Percentage: 100, Passed: true}) {
		t.Fatalf("unexpected verdict %+v", issuance.Verdict)
	}
	if issuance.Path == "" {
		t.Fatalf("expected rendered path")
	}
	if _, err := issuer.Issue(ctx, session, identity); err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if renderer.calls != 1 {
		t.Fatalf("expected render exactly once, got %d", renderer.calls)
	}
	want := domain.Certificate{RecipientName: "Ada", Subject: "Basic Arithmetic", Percentage: 100, IssueDate: issueDate}
	if renderer.last != want {
		t.Fatalf("unexpected certificate %+v", renderer.last)
	}
}

func TestIssueSkipsFailingVerdict(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(threeQuestionQuiz())
	session := loadedSession(t, gw)
	_ = session.SetAnswer(0, "ok")
	_ = session.SetAnswer(1, "wrong")
	_ = session.SetAnswer(2, "ok")
	if _, err := session.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	renderer := &countingRenderer{}
	issuance, err := app.NewCertificateIssuer(scoring.New(0), renderer).Issue(ctx, session, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issuance.Verdict.Passed || issuance.Verdict.Percentage != 67 || issuance.Path != "" {
		t.Fatalf("unexpected issuance %+v", issuance)
	}
	if renderer.calls != 0 {
		t.Fatalf("expected no render for failing verdict")
	}
}

func TestIssueRequiresScoredSession(t *testing.T) {
	session := loadedSession(t, newFakeGateway(threeQuestionQuiz()))
	_, err := app.NewCertificateIssuer(scoring.New(0), &countingRenderer{}).Issue(context.Background(), session, nil)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestIssueRetriesAfterRenderFailure(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway(threeQuestionQuiz())
	session := loadedSession(t, gw)
	for i := 0; i < 3; i++ {
		_ = session.SetAnswer(i, "ok")
	}
	if _, err := session.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	renderer := &countingRenderer{err: domain.ErrCaptureFailed}
	issuer := app.NewCertificateIssuer(scoring.New(0), renderer)
	if _, err := issuer.Issue(ctx, session, nil); !errors.Is(err, domain.ErrCaptureFailed) {
		t.Fatalf("expected capture failure, got %v", err)
	}
	renderer.err = nil
	issuance, err := issuer.Issue(ctx, session, nil)
	if err != nil || issuance.Path == "" {
		t.Fatalf("expected retry to render, got %+v err=%v", issuance, err)
	}
	if renderer.calls != 2 || renderer.last.RecipientName != "User" {
		t.Fatalf("unexpected renderer state calls=%d cert=%+v", renderer.calls, renderer.last)
	}
}

func TestRecipientName(t *testing.T) {
	cases := []struct {
		identity *domain.Identity
		want     string
	}{
		{nil, "User"},
		{&domain.Identity{Email: "ada@example.com"}, "ada@example.com"},
		{&domain.Identity{Email: "ada@example.com", DisplayName: " Ada "}, "Ada"},
		{&domain.Identity{}, "User"},
	}
	for _, tc := range cases {
		if got := app.RecipientName(tc.identity); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestGenerateQuizValidatesLocally(t *testing.T) {
	service := app.NewQuizService(newFakeGateway(), nil, &recordingStore{}, nil)
	ctx := context.Background()

	if _, err := service.GenerateQuiz(ctx, "  ", "easy"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for blank subject, got %v", err)
	}
	if _, err := service.GenerateQuiz(ctx, "History", "impossible"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for difficulty, got %v", err)
	}
	quiz, err := service.GenerateQuiz(ctx, " History ", "HARD")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if quiz.Subject != "History" || quiz.Difficulty != domain.DifficultyHard {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
}

func TestServiceRequiresSession(t *testing.T) {
	service := app.NewQuizService(newFakeGateway(threeQuestionQuiz()), nil, &recordingStore{}, staticGuard{err: domain.ErrSessionInconsistent})
	ctx := context.Background()

	if _, err := service.ListQuizzes(ctx); !errors.Is(err, domain.ErrSessionInconsistent) {
		t.Fatalf("expected inconsistent session, got %v", err)
	}
	if _, err := service.StartSession(ctx, 1); !errors.Is(err, domain.ErrSessionInconsistent) {
		t.Fatalf("expected inconsistent session, got %v", err)
	}
}

func TestStartSessionReturnsFailedSession(t *testing.T) {
	service := app.NewQuizService(newFakeGateway(), nil, &recordingStore{}, nil)
	session, err := service.StartSession(context.Background(), 42)
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if session == nil || session.State() != app.StateFailed {
		t.Fatalf("expected failed session for retry")
	}
}

func TestDownloadCertificateSavesArtifact(t *testing.T) {
	gw := newFakeGateway()
	gw.artifact = domain.Artifact{Filename: "certificate_7.json", Data: []byte(`{"score":3}`)}
	store := &recordingStore{}
	service := app.NewQuizService(gw, nil, store, nil)

	path, err := service.DownloadCertificate(context.Background(), 7)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if path != "/downloads/certificate_7.json" {
		t.Fatalf("unexpected path %q", path)
	}
	if len(store.saved) != 1 || string(store.saved[0].data) != `{"score":3}` {
		t.Fatalf("unexpected saved artifacts %+v", store.saved)
	}
}
