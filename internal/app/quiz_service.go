package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"quizdesk/internal/domain"
)

// Gateway is the backend surface the quiz use cases need.
type Gateway interface {
	Grader
	QuizSource
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	GenerateQuiz(ctx context.Context, subject string, difficulty domain.Difficulty) (domain.Quiz, error)
	ListHistory(ctx context.Context) ([]domain.HistoryEntry, error)
	ListCertificates(ctx context.Context) ([]domain.CertificateSummary, error)
	DownloadCertificate(ctx context.Context, historyID int64) (domain.Artifact, error)
}

// ArtifactStore writes downloaded and rendered files.
type ArtifactStore interface {
	Save(name string, data []byte) (string, error)
}

// SessionGuard reports whether an authenticated session exists.
type SessionGuard interface {
	Require() error
}

// QuizService contains the quiz use cases of the signed-in user.
type QuizService struct {
	gateway   Gateway
	quizzes   QuizSource
	artifacts ArtifactStore
	guard     SessionGuard
}

// NewQuizService wires the use cases. quizzes may be a caching decorator of
// the gateway; nil uses the gateway directly. guard may be nil.
func NewQuizService(gateway Gateway, quizzes QuizSource, artifacts ArtifactStore, guard SessionGuard) *QuizService {
	if quizzes == nil {
		quizzes = gateway
	}
	return &QuizService{gateway: gateway, quizzes: quizzes, artifacts: artifacts, guard: guard}
}

func (s *QuizService) require() error {
	if s.guard == nil {
		return nil
	}
	return s.guard.Require()
}

func (s *QuizService) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	return s.gateway.ListQuizzes(ctx)
}

// GenerateQuiz validates subject and difficulty before asking the backend.
func (s *QuizService) GenerateQuiz(ctx context.Context, subject, difficulty string) (domain.Quiz, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.Quiz{}, fmt.Errorf("%w: subject is required", domain.ErrValidation)
	}
	level, err := domain.ParseDifficulty(difficulty)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := s.require(); err != nil {
		return domain.Quiz{}, err
	}
	return s.gateway.GenerateQuiz(ctx, subject, level)
}

// StartSession creates a quiz session and loads it. On load failure the
// session is returned in Failed state so the caller can retry.
func (s *QuizService) StartSession(ctx context.Context, quizID int64) (*QuizSession, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	session := NewQuizSession(quizID, s.quizzes, s.gateway)
	if err := session.Load(ctx); err != nil {
		log.Printf("quiz %d: load failed: %v", quizID, err)
		return session, err
	}
	return session, nil
}

func (s *QuizService) History(ctx context.Context) ([]domain.HistoryEntry, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	return s.gateway.ListHistory(ctx)
}

func (s *QuizService) Certificates(ctx context.Context) ([]domain.CertificateSummary, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	return s.gateway.ListCertificates(ctx)
}

// DownloadCertificate fetches the certificate artifact of a history entry
// and saves it under the filename suggested by the backend.
func (s *QuizService) DownloadCertificate(ctx context.Context, historyID int64) (string, error) {
	if err := s.require(); err != nil {
		return "", err
	}
	artifact, err := s.gateway.DownloadCertificate(ctx, historyID)
	if err != nil {
		return "", err
	}
	path, err := s.artifacts.Save(artifact.Filename, artifact.Data)
	if err != nil {
		return "", fmt.Errorf("save certificate artifact: %w", err)
	}
	return path, nil
}
