package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"quizdesk/internal/domain"
)

// IdentityProvider is an in-process federated identity provider (useful for
// tests/demos). The *Err fields force the matching call to fail.
type IdentityProvider struct {
	SignInErr  error
	SignUpErr  error
	DeleteErr  error
	SignOutErr error
	// RefreshErr makes Refresh fail and end the session.
	RefreshErr error
	// Now and TokenTTL set the expiry handed out by Refresh.
	Now      func() time.Time
	TokenTTL time.Duration

	mu        sync.Mutex
	users     map[string]identityUser
	current   *domain.Identity
	persisted *domain.Identity
	listeners map[int]func(domain.Identity, bool)
	nextID    int
	seq       int
}

type identityUser struct {
	uid         string
	password    string
	displayName string
}

func NewIdentityProvider() *IdentityProvider {
	return &IdentityProvider{
		users:     make(map[string]identityUser),
		listeners: make(map[int]func(domain.Identity, bool)),
	}
}

// Enroll registers a user directly.
func (p *IdentityProvider) Enroll(email, password, displayName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addUserLocked(email, password, displayName)
}

// HasUser reports whether an account exists for email.
func (p *IdentityProvider) HasUser(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.users[normalizeEmail(email)]
	return ok
}

// Persist seeds the session that Restore will return.
func (p *IdentityProvider) Persist(identity domain.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persisted = &identity
}

func (p *IdentityProvider) SignIn(_ context.Context, email, password string) (domain.Identity, error) {
	p.mu.Lock()
	if p.SignInErr != nil {
		err := p.SignInErr
		p.mu.Unlock()
		return domain.Identity{}, err
	}
	user, ok := p.users[normalizeEmail(email)]
	if !ok || user.password != password {
		p.mu.Unlock()
		return domain.Identity{}, domain.ErrInvalidCredentials
	}
	identity := p.identityLocked(email, user)
	p.mu.Unlock()

	p.notify(identity, true)
	return identity, nil
}

func (p *IdentityProvider) SignUp(_ context.Context, email, password string) (domain.Identity, error) {
	p.mu.Lock()
	if p.SignUpErr != nil {
		err := p.SignUpErr
		p.mu.Unlock()
		return domain.Identity{}, err
	}
	if _, exists := p.users[normalizeEmail(email)]; exists {
		p.mu.Unlock()
		return domain.Identity{}, fmt.Errorf("%w: email already in use", domain.ErrValidation)
	}
	user := p.addUserLocked(email, password, "")
	identity := p.identityLocked(email, user)
	p.mu.Unlock()

	p.notify(identity, true)
	return identity, nil
}

func (p *IdentityProvider) Delete(_ context.Context, identity domain.Identity) error {
	p.mu.Lock()
	if p.DeleteErr != nil {
		err := p.DeleteErr
		p.mu.Unlock()
		return err
	}
	for email, user := range p.users {
		if user.uid == identity.UID {
			delete(p.users, email)
		}
	}
	signedOut := p.current != nil && p.current.UID == identity.UID
	if signedOut {
		p.current = nil
		p.persisted = nil
	}
	p.mu.Unlock()

	if signedOut {
		p.notify(domain.Identity{}, false)
	}
	return nil
}

// SignOut always clears the local session; SignOutErr is still reported.
func (p *IdentityProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.persisted = nil
	err := p.SignOutErr
	p.mu.Unlock()

	p.notify(domain.Identity{}, false)
	return err
}

func (p *IdentityProvider) Restore(_ context.Context) (domain.Identity, bool, error) {
	p.mu.Lock()
	var identity domain.Identity
	ok := p.persisted != nil
	if ok {
		identity = *p.persisted
		p.current = &identity
	}
	p.mu.Unlock()

	p.notify(identity, ok)
	return identity, ok, nil
}

// Refresh renews the current identity's expiry.
func (p *IdentityProvider) Refresh(_ context.Context) (domain.Identity, error) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	if p.RefreshErr != nil {
		err := p.RefreshErr
		p.current = nil
		p.persisted = nil
		p.mu.Unlock()
		p.notify(domain.Identity{}, false)
		return domain.Identity{}, err
	}
	now, ttl := time.Now, p.TokenTTL
	if p.Now != nil {
		now = p.Now
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	identity := *p.current
	identity.Expiry = now().Add(ttl)
	p.current = &identity
	p.persisted = &identity
	p.mu.Unlock()

	p.notify(identity, true)
	return identity, nil
}

// Revoke ends the current session as if the provider had expired it.
func (p *IdentityProvider) Revoke() {
	p.mu.Lock()
	p.current = nil
	p.persisted = nil
	p.mu.Unlock()
	p.notify(domain.Identity{}, false)
}

// Current returns the live identity, if any.
func (p *IdentityProvider) Current() (domain.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return domain.Identity{}, false
	}
	return *p.current, true
}

func (p *IdentityProvider) Subscribe(fn func(domain.Identity, bool)) func() {
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

func (p *IdentityProvider) notify(identity domain.Identity, ok bool) {
	p.mu.Lock()
	listeners := make([]func(domain.Identity, bool), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(identity, ok)
	}
}

func (p *IdentityProvider) addUserLocked(email, password, displayName string) identityUser {
	p.seq++
	user := identityUser{
		uid:         fmt.Sprintf("uid-%d", p.seq),
		password:    password,
		displayName: displayName,
	}
	p.users[normalizeEmail(email)] = user
	return user
}

func (p *IdentityProvider) identityLocked(email string, user identityUser) domain.Identity {
	identity := domain.Identity{
		UID:         user.uid,
		Email:       email,
		DisplayName: user.displayName,
		IDToken:     "id-" + user.uid,
	}
	p.current = &identity
	p.persisted = &identity
	return identity
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
