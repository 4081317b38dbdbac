package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"quizdesk/internal/domain"
	"quizdesk/internal/scoring"
)

// Renderer turns a certificate into an exported file and returns its path.
type Renderer interface {
	Render(ctx context.Context, cert domain.Certificate, verdict domain.Verdict) (string, error)
}

// Issuance is the outcome of CertificateIssuer.Issue.
type Issuance struct {
	Verdict domain.Verdict
	// Path is empty when the verdict did not pass.
	Path string
}

// CertificateIssuer interprets a scored session and renders the certificate
// of a passing attempt, at most once per session.
type CertificateIssuer struct {
	interpreter scoring.Interpreter
	renderer    Renderer
	now         func() time.Time
}

func NewCertificateIssuer(interpreter scoring.Interpreter, renderer Renderer) *CertificateIssuer {
	return NewCertificateIssuerWithClock(interpreter, renderer, time.Now)
}

// NewCertificateIssuerWithClock is test-only for deterministic issue dates.
func NewCertificateIssuerWithClock(interpreter scoring.Interpreter, renderer Renderer, now func() time.Time) *CertificateIssuer {
	return &CertificateIssuer{interpreter: interpreter, renderer: renderer, now: now}
}

// Issue requires a Scored session. A failing verdict is returned without
// rendering. A failed render can be retried with another Issue call.
func (c *CertificateIssuer) Issue(ctx context.Context, session *QuizSession, identity *domain.Identity) (Issuance, error) {
	result, scored := session.Result()
	if !scored {
		return Issuance{}, fmt.Errorf("%w: session is %s", domain.ErrInvalidState, session.State())
	}
	verdict := c.interpreter.Interpret(result)
	if !verdict.Passed {
		return Issuance{Verdict: verdict}, nil
	}

	path, claimed := session.claimCertificate()
	if !claimed {
		return Issuance{Verdict: verdict, Path: path}, nil
	}

	cert := domain.Certificate{
		RecipientName: RecipientName(identity),
		Subject:       session.Quiz().Subject,
		Percentage:    verdict.Percentage,
		IssueDate:     c.now(),
	}
	path, err := c.renderer.Render(ctx, cert, verdict)
	session.completeCertificate(path, err)
	if err != nil {
		log.Printf("quiz %d: certificate render failed: %v", session.QuizID(), err)
		return Issuance{Verdict: verdict}, err
	}
	return Issuance{Verdict: verdict, Path: path}, nil
}

// RecipientName prefers the display name, then the email address.
func RecipientName(identity *domain.Identity) string {
	if identity == nil {
		return "User"
	}
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	if email := strings.TrimSpace(identity.Email); email != "" {
		return email
	}
	return "User"
}
