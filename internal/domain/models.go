package domain

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the level a quiz was generated for.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty accepts easy, medium or hard in any case.
func ParseDifficulty(raw string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown difficulty %q", ErrValidation, raw)
	}
	return d, nil
}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Question is a free-text question; its position in the quiz is its identity.
type Question struct {
	Text string `json:"text"`
}

// Quiz is immutable once fetched from the backend.
type Quiz struct {
	ID         int64      `json:"id"`
	Subject    string     `json:"subject"`
	Difficulty Difficulty `json:"difficulty"`
	CreatedAt  time.Time  `json:"created_at"`
	Questions  []Question `json:"questions"`
}

// Result is the grading engine's answer to a submission.
type Result struct {
	Score     int   `json:"score"`
	Total     int   `json:"total"`
	HistoryID int64 `json:"history_id,omitempty"`
}

// Validate checks 0 <= Score <= Total and Total > 0.
func (r Result) Validate() error {
	if r.Total <= 0 {
		return fmt.Errorf("result total must be positive, got %d", r.Total)
	}
	if r.Score < 0 || r.Score > r.Total {
		return fmt.Errorf("result score %d outside [0, %d]", r.Score, r.Total)
	}
	return nil
}

// Verdict is derived from a Result and never stored.
type Verdict struct {
	Percentage int  `json:"percentage"`
	Passed     bool `json:"passed"`
}

// Identity is the opaque handle of a federated identity session.
type Identity struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName,omitempty"`
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// Live reports whether the identity's ID token is still usable at now.
// A zero expiry means the provider did not report one.
func (i Identity) Live(now time.Time) bool {
	if i.UID == "" {
		return false
	}
	return i.Expiry.IsZero() || now.Before(i.Expiry)
}

// Session is a snapshot of the dual-credential session.
type Session struct {
	BearerToken   string
	Identity      *Identity
	Authenticated bool
}

// HistoryEntry is one completed attempt as reported by /history/.
type HistoryEntry struct {
	ID              int64     `json:"id"`
	Quiz            Quiz      `json:"quiz"`
	Score           int       `json:"score"`
	CompletedAt     time.Time `json:"completed_at"`
	ScorePercentage int       `json:"score_percentage"`
	HasCertificate  bool      `json:"has_certificate"`
}

// CertificateSummary is one entry of /certificates/.
type CertificateSummary struct {
	QuizSubject string `json:"quiz_subject"`
	Score       int    `json:"score"`
	Date        string `json:"date"`
	HistoryID   int64  `json:"history_id"`
}

// Artifact is a downloaded certificate file.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Certificate is the rendering-only record handed to the renderer.
type Certificate struct {
	RecipientName string
	Subject       string
	Percentage    int
	IssueDate     time.Time
}
