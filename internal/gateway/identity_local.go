package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LocalSessionTTL bounds how long a local session token can be restored
const LocalSessionTTL = 30 * 24 * time.Hour

type localCredential struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Hash  string `json:"hash"`
}

type localSession struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LocalIdentity is an offline identity provider keeping bcrypt hashed credentials in a KV
// (cred_{email}) and session tokens under token_{token}. Each instance is one session handle.
type LocalIdentity struct {
	kv    KV
	cost  int
	newID func() string

	mu     sync.Mutex
	events authEvents
	token  string
}

// NewLocalIdentity creates a session handle over kv
func NewLocalIdentity(kv KV) *LocalIdentity {
	return &LocalIdentity{kv: kv, cost: bcrypt.DefaultCost, newID: uuid.NewString}
}

// WithCost sets the bcrypt cost, tests use bcrypt.MinCost
func (l *LocalIdentity) WithCost(cost int) *LocalIdentity {
	l.cost = cost
	return l
}

// WithIDGenerator replaces the random account id source
func (l *LocalIdentity) WithIDGenerator(fn func() string) *LocalIdentity {
	l.newID = fn
	return l
}

func credKey(email string) string  { return "cred_" + strings.ToLower(email) }
func tokenKey(token string) string { return "token_" + token }

func (l *LocalIdentity) Authenticate(ctx context.Context, cred Credential) (string, error) {
	raw, err := l.kv.Get(ctx, credKey(cred.Email))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return "", &AuthError{Err: ErrInvalidCredentials, Message: "Invalid email or password"}
		}
		return "", err
	}

	var stored localCredential
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return "", fmt.Errorf("corrupt credential for %s: %w", cred.Email, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.Hash), []byte(cred.Password)); err != nil {
		return "", &AuthError{Err: ErrInvalidCredentials, Message: "Invalid email or password"}
	}

	if err := l.startSession(ctx, stored.ID, stored.Email); err != nil {
		return "", err
	}
	l.emit(AuthEvent{Kind: SignedIn, IdentityID: stored.ID, Email: stored.Email})
	return stored.ID, nil
}

func (l *LocalIdentity) Register(ctx context.Context, cred Credential) (string, error) {
	id, err := l.create(ctx, cred)
	if err != nil {
		return "", err
	}
	if err := l.startSession(ctx, id, cred.Email); err != nil {
		return "", err
	}
	l.emit(AuthEvent{Kind: SignedIn, IdentityID: id, Email: cred.Email})
	return id, nil
}

// RegisterAsSecondaryIdentity creates the account and never starts a session
func (l *LocalIdentity) RegisterAsSecondaryIdentity(ctx context.Context, cred Credential) (string, error) {
	return l.create(ctx, cred)
}

func (l *LocalIdentity) create(ctx context.Context, cred Credential) (string, error) {
	if cred.Email == "" || cred.Password == "" {
		return "", &AuthError{Err: ErrInvalidCredentials, Message: "Email and password are required"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), l.cost)
	if err != nil {
		return "", err
	}
	stored := localCredential{
		ID:    l.newID(),
		Email: cred.Email,
		Hash:  string(hash),
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}

	ok, err := l.kv.SetNX(ctx, credKey(cred.Email), string(raw), 0)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &AuthError{Err: ErrEmailInUse, Message: "The email address is already in use by another account"}
	}
	return stored.ID, nil
}

func (l *LocalIdentity) startSession(ctx context.Context, id, email string) error {
	token := uuid.NewString()
	raw, err := json.Marshal(localSession{ID: id, Email: email})
	if err != nil {
		return err
	}
	if err := l.kv.Set(ctx, tokenKey(token), string(raw), LocalSessionTTL); err != nil {
		return err
	}

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return nil
}

func (l *LocalIdentity) Restore(ctx context.Context, token string) (string, error) {
	raw, err := l.kv.Get(ctx, tokenKey(token))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return "", ErrNotAuthenticated
		}
		return "", err
	}

	var session localSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return "", fmt.Errorf("corrupt session: %w", err)
	}

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()

	l.emit(AuthEvent{Kind: Restored, IdentityID: session.ID, Email: session.Email})
	return session.ID, nil
}

func (l *LocalIdentity) SignOut(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token != "" {
		if err := l.kv.Delete(ctx, tokenKey(token)); err != nil {
			return err
		}
	}
	l.emit(AuthEvent{Kind: SignedOut})
	return nil
}

func (l *LocalIdentity) OnAuthEvent(fn func(AuthEvent)) Unsubscribe {
	l.mu.Lock()
	id := l.events.add(fn)
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.events.listeners, id)
		l.mu.Unlock()
	}
}

func (l *LocalIdentity) Token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

func (l *LocalIdentity) emit(ev AuthEvent) {
	l.mu.Lock()
	fns := l.events.snapshot()
	l.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
