// Package auth keeps the backend bearer token and the federated identity in
// step: a session is authenticated only while both are present.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"quizdesk/internal/domain"
)

const (
	tokenKey = "session:token"

	// refreshMargin renews the ID token this long before it expires.
	refreshMargin       = 5 * time.Minute
	expiryCheckInterval = 30 * time.Second
)

// Backend is the token-issuing side of the session.
type Backend interface {
	Authenticate(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password string) error
}

// IdentityProvider is the federated identity side of the session. Subscribe
// delivers every sign-in state change; Restore reloads a persisted session.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (domain.Identity, error)
	SignUp(ctx context.Context, email, password string) (domain.Identity, error)
	Delete(ctx context.Context, identity domain.Identity) error
	SignOut(ctx context.Context) error
	Restore(ctx context.Context) (domain.Identity, bool, error)
	Refresh(ctx context.Context) (domain.Identity, error)
	Subscribe(fn func(identity domain.Identity, ok bool)) (cancel func())
}

// TokenStore is the key-value slot holding the bearer token.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Bridge owns the dual-credential session.
type Bridge struct {
	backend  Backend
	identity IdentityProvider
	tokens   TokenStore
	now      func() time.Time

	// acquire serializes session acquisition and teardown.
	acquire sync.Mutex

	mu          sync.Mutex
	token       string
	ident       *domain.Identity
	restored    bool
	last        bool
	subscribers map[chan bool]struct{}
	unsubscribe func()

	checkEvery time.Duration
	watching   bool
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewBridge(backend Backend, identity IdentityProvider, tokens TokenStore) *Bridge {
	return NewBridgeWithClock(backend, identity, tokens, time.Now)
}

// NewBridgeWithClock allows deterministic identity expiry in tests.
func NewBridgeWithClock(backend Backend, identity IdentityProvider, tokens TokenStore, now func() time.Time) *Bridge {
	b := &Bridge{
		backend:     backend,
		identity:    identity,
		tokens:      tokens,
		now:         now,
		subscribers: make(map[chan bool]struct{}),
		checkEvery:  expiryCheckInterval,
		stop:        make(chan struct{}),
	}
	b.unsubscribe = identity.Subscribe(b.onIdentity)
	return b
}

// Start restores the persisted session and begins watching the identity's
// expiry. Observers receive their first value once Start has finished. A
// half-restored session is torn down.
func (b *Bridge) Start(ctx context.Context) {
	b.acquire.Lock()
	defer b.acquire.Unlock()

	token, ok, err := b.tokens.Get(ctx, tokenKey)
	if err != nil {
		log.Printf("auth: read bearer token: %v", err)
	}
	if ok && err == nil {
		b.mu.Lock()
		b.token = token
		b.mu.Unlock()
	}

	// A missing identity drops the token through onIdentity.
	if _, _, err := b.identity.Restore(ctx); err != nil {
		log.Printf("auth: restore identity session: %v", err)
	}

	b.mu.Lock()
	orphanIdentity := b.ident != nil && b.token == ""
	b.mu.Unlock()
	if orphanIdentity {
		log.Printf("auth: identity restored without bearer token, signing out")
		if err := b.identity.SignOut(ctx); err != nil {
			log.Printf("auth: sign out orphaned identity: %v", err)
		}
		b.mu.Lock()
		b.ident = nil
		b.mu.Unlock()
	}

	b.mu.Lock()
	b.restored = true
	b.last = b.authenticatedLocked()
	b.broadcastLocked(b.last)
	startWatch := !b.watching
	b.watching = true
	b.mu.Unlock()

	if startWatch {
		go b.watchExpiry()
	}
}

func (b *Bridge) watchExpiry() {
	ticker := time.NewTicker(b.checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.checkExpiry(context.Background())
		}
	}
}

// checkExpiry renews an identity that is about to expire. When renewal
// fails the provider ends the session and the token is dropped with it;
// either way observers learn about the new state.
func (b *Bridge) checkExpiry(ctx context.Context) {
	b.acquire.Lock()
	defer b.acquire.Unlock()

	b.mu.Lock()
	due := b.token != "" && b.ident != nil && !b.ident.Expiry.IsZero() &&
		!b.now().Add(refreshMargin).Before(b.ident.Expiry)
	b.mu.Unlock()

	if due {
		if _, err := b.identity.Refresh(ctx); err != nil {
			log.Printf("auth: renew identity: %v", err)
		}
	}

	b.mu.Lock()
	b.publishLocked()
	b.mu.Unlock()
}

// Login acquires both credentials as one step. Any existing session is ended
// first. The bearer token is only committed after the identity sign-in
// succeeded; otherwise it is discarded.
func (b *Bridge) Login(ctx context.Context, email, password string) (domain.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.Session{}, fmt.Errorf("login: %w: email and password are required", domain.ErrInvalidCredentials)
	}

	b.acquire.Lock()
	defer b.acquire.Unlock()

	b.mu.Lock()
	held := b.token != "" || b.ident != nil
	b.mu.Unlock()
	if held {
		b.clearLocked(ctx)
	}

	token, err := b.backend.Authenticate(ctx, email, password)
	if err != nil {
		return domain.Session{}, fmt.Errorf("login: %w", classifyBackend(err))
	}

	identity, err := b.identity.SignIn(ctx, email, password)
	if err != nil {
		log.Printf("auth: identity sign-in failed, discarding bearer token: %v", err)
		return domain.Session{}, fmt.Errorf("login: %w: %w", domain.ErrIdentityProvider, err)
	}

	if err := b.tokens.Set(ctx, tokenKey, token); err != nil {
		if signOutErr := b.identity.SignOut(ctx); signOutErr != nil {
			log.Printf("auth: roll back identity after token store failure: %v", signOutErr)
		}
		return domain.Session{}, fmt.Errorf("login: store bearer token: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
	b.ident = &identity
	b.publishLocked()
	return b.sessionLocked(), nil
}

// Register creates the federated identity, then the backend account. When
// the backend step fails the new identity is deleted again; if that delete
// fails too, the error also matches domain.ErrRegistrationIncomplete.
// Registration never leaves a session behind.
func (b *Bridge) Register(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("register: %w: email and password are required", domain.ErrValidation)
	}

	b.acquire.Lock()
	defer b.acquire.Unlock()

	b.clearLocked(ctx)

	identity, err := b.identity.SignUp(ctx, email, password)
	if err != nil {
		return fmt.Errorf("register: %w: %w", domain.ErrIdentityProvider, err)
	}

	if err := b.backend.Register(ctx, email, password); err != nil {
		if delErr := b.identity.Delete(ctx, identity); delErr != nil {
			log.Printf("auth: could not delete identity %s after backend registration failed: %v", identity.UID, delErr)
			return fmt.Errorf("register: %w: %w", domain.ErrRegistrationIncomplete, errors.Join(classifyBackend(err), delErr))
		}
		return fmt.Errorf("register: %w", classifyBackend(err))
	}

	if err := b.identity.SignOut(ctx); err != nil {
		log.Printf("auth: sign out after registration: %v", err)
	}
	return nil
}

// Logout clears both credentials. Local state is always cleared; store and
// provider failures are only logged.
func (b *Bridge) Logout(ctx context.Context) {
	b.acquire.Lock()
	defer b.acquire.Unlock()
	b.clearLocked(ctx)
}

func (b *Bridge) clearLocked(ctx context.Context) {
	b.mu.Lock()
	b.token = ""
	b.publishLocked()
	b.mu.Unlock()

	if err := b.tokens.Delete(ctx, tokenKey); err != nil {
		log.Printf("auth: delete bearer token: %v", err)
	}
	if err := b.identity.SignOut(ctx); err != nil {
		log.Printf("auth: identity sign out: %v", err)
	}

	b.mu.Lock()
	b.ident = nil
	b.publishLocked()
	b.mu.Unlock()
}

// Observe subscribes to the authenticated flag. The current value is sent
// on subscribe once Start has completed, then every change. Only the latest
// value is kept for slow readers. cancel closes the channel.
func (b *Bridge) Observe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	if b.restored {
		ch <- b.authenticatedLocked()
	}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Session returns a snapshot of the current session.
func (b *Bridge) Session() domain.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked()
	return b.sessionLocked()
}

// Require returns nil for an authenticated session, domain.ErrSessionInconsistent
// when only one credential is present and domain.ErrUnauthenticated otherwise.
func (b *Bridge) Require() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked()
	hasToken := b.token != ""
	hasIdentity := b.ident != nil && b.ident.Live(b.now())
	switch {
	case hasToken && hasIdentity:
		return nil
	case hasToken || hasIdentity:
		return domain.ErrSessionInconsistent
	default:
		return domain.ErrUnauthenticated
	}
}

// BearerToken returns the token only while the session is authenticated.
func (b *Bridge) BearerToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked()
	if !b.authenticatedLocked() {
		return ""
	}
	return b.token
}

// Close stops listening to the identity provider and closes all observers.
func (b *Bridge) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// onIdentity receives provider notifications. Losing the identity while a
// token is held drops the token as well.
func (b *Bridge) onIdentity(identity domain.Identity, ok bool) {
	b.mu.Lock()
	var dropToken bool
	if ok {
		b.ident = &identity
	} else {
		b.ident = nil
		dropToken = b.token != ""
		b.token = ""
	}
	b.publishLocked()
	b.mu.Unlock()

	if dropToken {
		log.Printf("auth: identity session ended, dropping bearer token")
		if err := b.tokens.Delete(context.Background(), tokenKey); err != nil {
			log.Printf("auth: delete bearer token: %v", err)
		}
	}
}

func (b *Bridge) authenticatedLocked() bool {
	return b.token != "" && b.ident != nil && b.ident.Live(b.now())
}

func (b *Bridge) sessionLocked() domain.Session {
	s := domain.Session{
		BearerToken:   b.token,
		Authenticated: b.authenticatedLocked(),
	}
	if b.ident != nil {
		ident := *b.ident
		s.Identity = &ident
	}
	return s
}

func (b *Bridge) publishLocked() {
	if !b.restored {
		return
	}
	state := b.authenticatedLocked()
	if state == b.last {
		return
	}
	b.last = state
	b.broadcastLocked(state)
}

func (b *Bridge) broadcastLocked(state bool) {
	for ch := range b.subscribers {
		select {
		case ch <- state:
		default:
			// keep only the newest state for a slow reader
			select {
			case <-ch:
			default:
			}
			ch <- state
		}
	}
}

// classifyBackend folds gateway failures into the auth taxonomy: transport
// and server failures are network errors, everything else is a credential
// rejection.
func classifyBackend(err error) error {
	if errors.Is(err, domain.ErrNetwork) || errors.Is(err, domain.ErrServer) {
		return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidCredentials, err)
}
