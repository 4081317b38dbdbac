package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"quizdesk/internal/domain"
)

// DefaultBaseURL matches the backend's development address.
const DefaultBaseURL = "http://localhost:8000/api"

const defaultArtifactName = "certificate.json"

// TokenSource yields the current bearer token, or "" when there is no session.
type TokenSource interface {
	BearerToken() string
}

// Client is the only channel to the quiz backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// WithTokenSource returns a copy of the client that attaches tokens from src.
func (c *Client) WithTokenSource(src TokenSource) *Client {
	clone := *c
	clone.tokens = src
	return &clone
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type generateRequest struct {
	Subject    string            `json:"subject"`
	Difficulty domain.Difficulty `json:"difficulty"`
}

type submitRequest struct {
	Answers []string `json:"answers"`
}

// Authenticate exchanges credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, email, password string) (string, error) {
	var payload tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/token-auth/", false, credentialsRequest{Email: email, Password: password}, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Token) == "" {
		return "", &APIError{Kind: domain.ErrServer, StatusCode: http.StatusOK, Message: "empty token in response"}
	}
	return payload.Token, nil
}

// Register creates the backend account.
func (c *Client) Register(ctx context.Context, email, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/register/", false, credentialsRequest{Email: email, Password: password}, nil)
}

// GenerateQuiz asks the backend to create a quiz; inputs are validated locally first.
func (c *Client) GenerateQuiz(ctx context.Context, subject string, difficulty domain.Difficulty) (domain.Quiz, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.Quiz{}, &APIError{Kind: domain.ErrValidation, Message: "subject is required"}
	}
	if !difficulty.Valid() {
		return domain.Quiz{}, &APIError{Kind: domain.ErrValidation, Message: fmt.Sprintf("unknown difficulty %q", difficulty)}
	}
	var quiz domain.Quiz
	if err := c.doJSON(ctx, http.MethodPost, "/generate/", true, generateRequest{Subject: subject, Difficulty: difficulty}, &quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (c *Client) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	if err := c.doJSON(ctx, http.MethodGet, "/quizzes/", true, nil, &quizzes); err != nil {
		return nil, err
	}
	return quizzes, nil
}

// FetchQuiz loads one quiz; a 404 also matches domain.ErrQuizNotFound.
func (c *Client) FetchQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := c.doJSON(ctx, http.MethodGet, "/quizzes/"+strconv.FormatInt(quizID, 10)+"/", true, nil, &quiz); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Quiz{}, fmt.Errorf("%w: %w", domain.ErrQuizNotFound, err)
		}
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// SubmitAnswers sends the answer set for grading.
func (c *Client) SubmitAnswers(ctx context.Context, quizID int64, answers []string) (domain.Result, error) {
	var result domain.Result
	if err := c.doJSON(ctx, http.MethodPost, "/submit/"+strconv.FormatInt(quizID, 10)+"/", true, submitRequest{Answers: answers}, &result); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Result{}, fmt.Errorf("%w: %w", domain.ErrQuizNotFound, err)
		}
		return domain.Result{}, err
	}
	if err := result.Validate(); err != nil {
		return domain.Result{}, &APIError{Kind: domain.ErrServer, StatusCode: http.StatusOK, Message: err.Error()}
	}
	return result, nil
}

func (c *Client) ListHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	if err := c.doJSON(ctx, http.MethodGet, "/history/", true, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) ListCertificates(ctx context.Context) ([]domain.CertificateSummary, error) {
	var certs []domain.CertificateSummary
	if err := c.doJSON(ctx, http.MethodGet, "/certificates/", true, nil, &certs); err != nil {
		return nil, err
	}
	return certs, nil
}

// DownloadCertificate fetches the certificate artifact for a history entry.
// The filename comes from Content-Disposition when the backend sends one.
func (c *Client) DownloadCertificate(ctx context.Context, historyID int64) (domain.Artifact, error) {
	response, err := c.do(ctx, http.MethodGet, "/certificates/download/"+strconv.FormatInt(historyID, 10)+"/", true, nil)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return domain.Artifact{}, &APIError{Kind: domain.ErrNetwork, Message: err.Error()}
	}
	return domain.Artifact{
		Filename:    filenameFromDisposition(response.Header.Get("Content-Disposition")),
		ContentType: response.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, authenticated bool, requestBody any, responseBody any) error {
	response, err := c.do(ctx, method, endpoint, authenticated, requestBody)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if responseBody == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(responseBody); err != nil {
		return &APIError{Kind: domain.ErrServer, StatusCode: response.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

// do sends the request and returns the response only for 2xx statuses; the caller closes the body.
func (c *Client) do(ctx context.Context, method, endpoint string, authenticated bool, requestBody any) (*http.Response, error) {
	var token string
	if authenticated {
		if c.tokens != nil {
			token = strings.TrimSpace(c.tokens.BearerToken())
		}
		if token == "" {
			return nil, &APIError{Kind: domain.ErrUnauthorized, Message: "no bearer token"}
		}
	}

	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, &APIError{Kind: domain.ErrValidation, Message: err.Error()}
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, &APIError{Kind: domain.ErrValidation, Message: err.Error()}
	}
	requestID := uuid.NewString()
	request.Header.Set("X-Request-ID", requestID)
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Token "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		log.Printf("gateway %s %s [%s] failed: %v", method, endpoint, requestID, err)
		return nil, &APIError{Kind: domain.ErrNetwork, Message: err.Error()}
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		defer response.Body.Close()
		apiErr := &APIError{
			Kind:       classifyStatus(response.StatusCode),
			StatusCode: response.StatusCode,
			Message:    readErrorMessage(response.Body),
		}
		if apiErr.Message == "" {
			apiErr.Message = response.Status
		}
		log.Printf("gateway %s %s [%s] status %d: %s", method, endpoint, requestID, response.StatusCode, apiErr.Message)
		return nil, apiErr
	}
	return response, nil
}

// readErrorMessage understands {"error": ...}, {"detail": ...} and DRF field maps.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload errorResponse
	if err := json.Unmarshal(raw, &payload); err == nil && strings.TrimSpace(payload.message()) != "" {
		return payload.message()
	}
	var fields map[string][]string
	if err := json.Unmarshal(raw, &fields); err == nil && len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+strings.Join(fields[k], " "))
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return defaultArtifactName
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return defaultArtifactName
	}
	name := path.Base(strings.ReplaceAll(params["filename"], `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return defaultArtifactName
	}
	return name
}
