package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"quizdesk/internal/domain"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type staticToken string

func (s staticToken) BearerToken() string { return string(s) }

func TestAuthenticatedCallAttachesToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/quizzes/7/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         7,
			"subject":    "Go",
			"difficulty": "easy",
			"created_at": "2026-01-02T03:04:05Z",
			"questions":  []map[string]any{{"id": 1, "text": "What is a goroutine?", "answer": "secret"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client()).WithTokenSource(staticToken("abc123"))
	quiz, err := client.FetchQuiz(context.Background(), 7)
	if err != nil {
		t.Fatalf("fetch quiz: %v", err)
	}
	if gotAuth != "Token abc123" {
		t.Fatalf("expected token header, got %q", gotAuth)
	}
	if quiz.ID != 7 || len(quiz.Questions) != 1 || quiz.Questions[0].Text != "What is a goroutine?" {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
}

func TestMissingTokenShortCircuits(t *testing.T) {
	calls := 0
	client := NewClient("http://example.test", &http.Client{
		Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, errors.New("should not be called")
		}),
	})

	_, err := client.ListQuizzes(context.Background())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no network call, got %d", calls)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	client := NewClient("http://example.test", &http.Client{
		Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("dial error")
		}),
	})

	_, err := client.Authenticate(context.Background(), "a@b.c", "pw")
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusUnauthorized, `{"detail":"Invalid token."}`, domain.ErrUnauthorized},
		{http.StatusForbidden, `{"error":"Certificate not available for scores below 80%"}`, domain.ErrUnauthorized},
		{http.StatusNotFound, `{"error":"Quiz not found"}`, domain.ErrNotFound},
		{http.StatusBadRequest, `{"subject":["This field is required."]}`, domain.ErrValidation},
		{http.StatusInternalServerError, ``, domain.ErrServer},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		client := NewClient(server.URL, server.Client()).WithTokenSource(staticToken("t"))
		_, err := client.ListHistory(context.Background())
		server.Close()

		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != tc.status {
			t.Fatalf("status %d: expected APIError with status, got %v", tc.status, err)
		}
	}
}

func TestValidationMessageFromFieldErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"subject":["This field is required."]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	err := client.Register(context.Background(), "a@b.c", "pw")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "subject: This field is required." {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestFetchQuizNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client()).WithTokenSource(staticToken("t"))
	_, err := client.FetchQuiz(context.Background(), 99)
	if !errors.Is(err, domain.ErrQuizNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestSubmitAnswersRejectsInvalidResult(t *testing.T) {
	var got submitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submit/3/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"score":5,"total":3}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client()).WithTokenSource(staticToken("t"))
	_, err := client.SubmitAnswers(context.Background(), 3, []string{"a", "b", "c"})
	if !errors.Is(err, domain.ErrServer) {
		t.Fatalf("expected server error for invalid result, got %v", err)
	}
	if len(got.Answers) != 3 {
		t.Fatalf("expected answers in body, got %+v", got)
	}
}

func TestGenerateQuizValidatesLocally(t *testing.T) {
	client := NewClient("http://example.test", &http.Client{
		Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			t.Fatalf("no request expected")
			return nil, nil
		}),
	}).WithTokenSource(staticToken("t"))

	if _, err := client.GenerateQuiz(context.Background(), "  ", domain.DifficultyEasy); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty subject, got %v", err)
	}
	if _, err := client.GenerateQuiz(context.Background(), "Go", "nightmare"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for difficulty, got %v", err)
	}
}

func TestDownloadCertificateUsesDispositionFilename(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/certificates/download/12/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="certificate_go_20260102.json"`)
		_, _ = w.Write([]byte(`{"certificate_id":"CERT-000012"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client()).WithTokenSource(staticToken("t"))
	artifact, err := client.DownloadCertificate(context.Background(), 12)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if artifact.Filename != "certificate_go_20260102.json" {
		t.Fatalf("unexpected filename %q", artifact.Filename)
	}
	if string(artifact.Data) != `{"certificate_id":"CERT-000012"}` {
		t.Fatalf("unexpected data %q", artifact.Data)
	}
}

func TestFilenameFromDispositionFallback(t *testing.T) {
	if got := filenameFromDisposition(""); got != "certificate.json" {
		t.Fatalf("expected default, got %q", got)
	}
	if got := filenameFromDisposition(`attachment; filename="../../etc/passwd"`); got != "passwd" {
		t.Fatalf("expected path stripped, got %q", got)
	}
}
