// Package identity talks to the federated identity provider (Firebase
// Authentication through the Identity Toolkit REST API) and keeps its
// sign-in state persisted so it can be restored at startup.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"quizdesk/internal/domain"
)

const (
	DefaultBaseURL  = "https://identitytoolkit.googleapis.com"
	DefaultTokenURL = "https://securetoken.googleapis.com/v1/token"

	sessionKey = "identity:session"
)

// KeyValueStore persists the signed-in identity between runs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Options configures a FirebaseProvider. Only APIKey and Store are required.
type Options struct {
	APIKey     string
	BaseURL    string
	TokenURL   string
	HTTPClient *http.Client
	Store      KeyValueStore
	Now        func() time.Time
}

// FirebaseProvider signs users in and out of Firebase Authentication.
type FirebaseProvider struct {
	apiKey     string
	baseURL    string
	tokenURL   string
	httpClient *http.Client
	store      KeyValueStore
	now        func() time.Time

	mu        sync.Mutex
	current   *domain.Identity
	listeners map[int]func(domain.Identity, bool)
	nextID    int
}

func NewFirebaseProvider(opts Options) (*FirebaseProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("identity: api key is required")
	}
	if opts.Store == nil {
		return nil, errors.New("identity: session store is required")
	}
	p := &FirebaseProvider{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		tokenURL:   opts.TokenURL,
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		now:        opts.Now,
		listeners:  make(map[int]func(domain.Identity, bool)),
	}
	if p.baseURL == "" {
		p.baseURL = DefaultBaseURL
	}
	if p.tokenURL == "" {
		p.tokenURL = DefaultTokenURL
	}
	if p.httpClient == nil {
		p.httpClient = http.DefaultClient
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type deleteRequest struct {
	IDToken string `json:"idToken"`
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	return p.authenticate(ctx, "accounts:signInWithPassword", email, password)
}

// SignUp creates the account; like the Firebase SDKs it also signs the new user in.
func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (domain.Identity, error) {
	return p.authenticate(ctx, "accounts:signUp", email, password)
}

func (p *FirebaseProvider) authenticate(ctx context.Context, method, email, password string) (domain.Identity, error) {
	var payload authResponse
	req := passwordRequest{Email: email, Password: password, ReturnSecureToken: true}
	if err := p.call(ctx, method, req, &payload); err != nil {
		return domain.Identity{}, err
	}

	identity := domain.Identity{
		UID:          payload.LocalID,
		Email:        payload.Email,
		DisplayName:  payload.DisplayName,
		IDToken:      payload.IDToken,
		RefreshToken: payload.RefreshToken,
		Expiry:       p.expiry(payload.IDToken, payload.ExpiresIn),
	}
	if identity.UID == "" || identity.IDToken == "" {
		return domain.Identity{}, &ProviderError{Code: "MALFORMED_RESPONSE", StatusCode: http.StatusOK}
	}
	if err := p.persist(ctx, identity); err != nil {
		return domain.Identity{}, err
	}
	p.setCurrent(&identity)
	return identity, nil
}

// Delete removes the account behind identity; used to roll back a sign-up.
func (p *FirebaseProvider) Delete(ctx context.Context, identity domain.Identity) error {
	if err := p.call(ctx, "accounts:delete", deleteRequest{IDToken: identity.IDToken}, nil); err != nil {
		return err
	}
	p.mu.Lock()
	isCurrent := p.current != nil && p.current.UID == identity.UID
	p.mu.Unlock()
	if isCurrent {
		return p.SignOut(ctx)
	}
	return nil
}

// SignOut is local: the persisted session is dropped and subscribers notified.
func (p *FirebaseProvider) SignOut(ctx context.Context) error {
	err := p.store.Delete(ctx, sessionKey)
	p.setCurrent(nil)
	return err
}

// Restore loads the persisted session. An expired ID token is refreshed with
// the refresh token; when that fails the session is dropped.
func (p *FirebaseProvider) Restore(ctx context.Context) (domain.Identity, bool, error) {
	raw, ok, err := p.store.Get(ctx, sessionKey)
	if err != nil {
		p.setCurrent(nil)
		return domain.Identity{}, false, err
	}
	if !ok {
		p.setCurrent(nil)
		return domain.Identity{}, false, nil
	}

	var identity domain.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		log.Printf("identity: discarding unreadable persisted session: %v", err)
		_ = p.store.Delete(ctx, sessionKey)
		p.setCurrent(nil)
		return domain.Identity{}, false, nil
	}

	if !identity.Live(p.now()) {
		refreshed, err := p.refresh(ctx, identity)
		if err != nil {
			log.Printf("identity: refresh of persisted session failed: %v", err)
			_ = p.store.Delete(ctx, sessionKey)
			p.setCurrent(nil)
			return domain.Identity{}, false, nil
		}
		identity = refreshed
		if err := p.persist(ctx, identity); err != nil {
			p.setCurrent(nil)
			return domain.Identity{}, false, err
		}
	}

	p.setCurrent(&identity)
	return identity, true, nil
}

// Refresh renews the ID token of the current session. A failed renewal
// keeps a still-live session for a later attempt and drops an expired one.
func (p *FirebaseProvider) Refresh(ctx context.Context) (domain.Identity, error) {
	current, ok := p.Current()
	if !ok {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	refreshed, err := p.refresh(ctx, current)
	if err != nil {
		if !current.Live(p.now()) {
			log.Printf("identity: session expired and could not be renewed: %v", err)
			_ = p.store.Delete(ctx, sessionKey)
			p.setCurrent(nil)
		}
		return domain.Identity{}, err
	}
	if err := p.persist(ctx, refreshed); err != nil {
		log.Printf("identity: persist renewed session: %v", err)
	}
	p.setCurrent(&refreshed)
	return refreshed, nil
}

// Current returns the signed-in identity, if any.
func (p *FirebaseProvider) Current() (domain.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return domain.Identity{}, false
	}
	return *p.current, true
}

// Subscribe registers fn for sign-in state changes and returns its cancel func.
func (p *FirebaseProvider) Subscribe(fn func(domain.Identity, bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// refresh exchanges the refresh token at the secure token endpoint, which
// speaks the OAuth2 refresh_token grant.
func (p *FirebaseProvider) refresh(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	if identity.RefreshToken == "" {
		return domain.Identity{}, errors.New("no refresh token")
	}
	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.tokenURL + "?key=" + url.QueryEscape(p.apiKey),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	expired := &oauth2.Token{
		AccessToken:  identity.IDToken,
		RefreshToken: identity.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := conf.TokenSource(ctx, expired).Token()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}

	idToken := tok.AccessToken
	if extra, ok := tok.Extra("id_token").(string); ok && extra != "" {
		idToken = extra
	}
	identity.IDToken = idToken
	if tok.RefreshToken != "" {
		identity.RefreshToken = tok.RefreshToken
	}
	identity.Expiry = tok.Expiry
	if exp, ok := tokenExpiry(idToken); ok {
		identity.Expiry = exp
	}
	return identity, nil
}

func (p *FirebaseProvider) persist(ctx context.Context, identity domain.Identity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, sessionKey, string(raw))
}

func (p *FirebaseProvider) setCurrent(identity *domain.Identity) {
	p.mu.Lock()
	p.current = identity
	listeners := make([]func(domain.Identity, bool), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	var value domain.Identity
	if identity != nil {
		value = *identity
	}
	for _, fn := range listeners {
		fn(value, identity != nil)
	}
}

// expiry prefers the exp claim of the ID token, then expiresIn seconds.
func (p *FirebaseProvider) expiry(idToken, expiresIn string) time.Time {
	if exp, ok := tokenExpiry(idToken); ok {
		return exp
	}
	if secs, err := strconv.Atoi(expiresIn); err == nil && secs > 0 {
		return p.now().Add(time.Duration(secs) * time.Second)
	}
	return time.Time{}
}

// tokenExpiry reads the exp claim without verifying the signature; the token
// came straight from the provider over TLS and is only used for scheduling.
func tokenExpiry(idToken string) (time.Time, bool) {
	if idToken == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (p *FirebaseProvider) call(ctx context.Context, method string, requestBody any, responseBody any) error {
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}
	endpoint := p.baseURL + "/v1/" + method + "?key=" + url.QueryEscape(p.apiKey)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := p.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return decodeProviderError(response.StatusCode, response.Body)
	}
	if responseBody == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(responseBody); err != nil {
		return &ProviderError{Code: "MALFORMED_RESPONSE", StatusCode: response.StatusCode}
	}
	return nil
}

type providerErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeProviderError(status int, body io.Reader) error {
	var payload providerErrorBody
	_ = json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&payload)
	code := payload.Error.Message
	if code == "" {
		code = http.StatusText(status)
	}
	return &ProviderError{Code: code, StatusCode: status}
}
