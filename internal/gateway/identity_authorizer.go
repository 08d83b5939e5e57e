// identity_authorizer.go
//
// Identity provider session handles backed by an Authorizer server.
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of eagleview.
// eagleview is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// eagleview is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with eagleview.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/authorizerdev/authorizer-go"
	"go.uber.org/zap"
)

// AuthorizerConfig holds what every Authorizer client needs
type AuthorizerConfig struct {
	URL         string
	ClientID    string
	RedirectURL string
}

// AuthorizerIdentity is one session handle against Authorizer. The primary client carries
// this handle's session; secondary registrations use a throwaway client.
type AuthorizerIdentity struct {
	cfg     AuthorizerConfig
	primary *authorizer.AuthorizerClient
	log     *zap.Logger

	mu     sync.Mutex
	events authEvents
	token  string
}

// NewAuthorizerIdentity creates a session handle
func NewAuthorizerIdentity(cfg AuthorizerConfig, log *zap.Logger) (*AuthorizerIdentity, error) {
	client, err := newAuthorizerClient(cfg)
	if err != nil {
		return nil, err
	}
	return &AuthorizerIdentity{cfg: cfg, primary: client, log: log}, nil
}

func newAuthorizerClient(cfg AuthorizerConfig) (*authorizer.AuthorizerClient, error) {
	client, err := authorizer.NewAuthorizerClient(cfg.ClientID, cfg.URL, cfg.RedirectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer client: %w", err)
	}
	return client, nil
}

func (a *AuthorizerIdentity) Authenticate(_ context.Context, cred Credential) (string, error) {
	email := cred.Email
	res, err := a.primary.Login(&authorizer.LoginInput{
		Email:    &email,
		Password: cred.Password,
	})
	if err != nil {
		return "", authorizerError(err)
	}

	id, err := a.adopt(res)
	if err != nil {
		return "", err
	}
	a.emit(AuthEvent{Kind: SignedIn, IdentityID: id, Email: cred.Email})
	return id, nil
}

// Register signs up and leaves this handle signed in as the new account
func (a *AuthorizerIdentity) Register(ctx context.Context, cred Credential) (string, error) {
	email := cred.Email
	res, err := a.primary.SignUp(&authorizer.SignUpInput{
		Email:           &email,
		Password:        cred.Password,
		ConfirmPassword: cred.Password,
	})
	if err != nil {
		return "", authorizerError(err)
	}

	// Servers that require verification do not return a token on signup
	if res == nil || res.AccessToken == nil {
		return a.Authenticate(ctx, cred)
	}

	id, err := a.adopt(res)
	if err != nil {
		return "", err
	}
	a.emit(AuthEvent{Kind: SignedIn, IdentityID: id, Email: cred.Email})
	return id, nil
}

// RegisterAsSecondaryIdentity signs the account up on a separate client, signs that client
// out, and discards it. The primary session is never touched.
func (a *AuthorizerIdentity) RegisterAsSecondaryIdentity(_ context.Context, cred Credential) (string, error) {
	secondary, err := newAuthorizerClient(a.cfg)
	if err != nil {
		return "", err
	}

	email := cred.Email
	res, err := secondary.SignUp(&authorizer.SignUpInput{
		Email:           &email,
		Password:        cred.Password,
		ConfirmPassword: cred.Password,
	})
	if err != nil {
		return "", authorizerError(err)
	}
	if res == nil || res.User == nil {
		return "", fmt.Errorf("authorizer signup for %s returned no user", cred.Email)
	}

	id, _ := identityOf(res.User)
	if id == "" {
		return "", fmt.Errorf("authorizer signup for %s returned no user id", cred.Email)
	}

	if res.AccessToken != nil {
		if _, err := secondary.Logout(bearer(*res.AccessToken)); err != nil {
			a.log.Debug("secondary session logout failed", zap.Error(err))
		}
	}
	return id, nil
}

// Restore re-establishes the session from an access token
func (a *AuthorizerIdentity) Restore(_ context.Context, token string) (string, error) {
	user, err := a.primary.GetProfile(bearer(token))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	id, email := identityOf(user)
	if id == "" {
		return "", ErrNotAuthenticated
	}

	a.mu.Lock()
	a.token = token
	a.mu.Unlock()

	a.emit(AuthEvent{Kind: Restored, IdentityID: id, Email: email})
	return id, nil
}

func (a *AuthorizerIdentity) SignOut(_ context.Context) error {
	a.mu.Lock()
	token := a.token
	a.token = ""
	a.mu.Unlock()

	if token != "" {
		if _, err := a.primary.Logout(bearer(token)); err != nil {
			a.log.Warn("authorizer logout failed", zap.Error(err))
		}
	}
	a.emit(AuthEvent{Kind: SignedOut})
	return nil
}

func (a *AuthorizerIdentity) OnAuthEvent(fn func(AuthEvent)) Unsubscribe {
	a.mu.Lock()
	id := a.events.add(fn)
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.events.listeners, id)
		a.mu.Unlock()
	}
}

func (a *AuthorizerIdentity) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *AuthorizerIdentity) adopt(res *authorizer.AuthTokenResponse) (string, error) {
	if res == nil || res.AccessToken == nil || res.User == nil {
		return "", &AuthError{Err: ErrInvalidCredentials, Message: "Authorizer returned no session"}
	}
	id, _ := identityOf(res.User)
	if id == "" {
		return "", fmt.Errorf("authorizer session has no user id")
	}

	a.mu.Lock()
	a.token = *res.AccessToken
	a.mu.Unlock()
	return id, nil
}

func (a *AuthorizerIdentity) emit(ev AuthEvent) {
	a.mu.Lock()
	fns := a.events.snapshot()
	a.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// identityOf reads id and email through the user's JSON form
func identityOf(user interface{}) (id, email string) {
	raw, err := json.Marshal(user)
	if err != nil {
		return "", ""
	}
	var u struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return "", ""
	}
	return u.ID, u.Email
}

// authorizerError maps provider messages onto the gateway sentinels, keeping the message
func authorizerError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "already"):
		return &AuthError{Err: ErrEmailInUse, Message: msg}
	case strings.Contains(lower, "credentials"), strings.Contains(lower, "password"), strings.Contains(lower, "not found"):
		return &AuthError{Err: ErrInvalidCredentials, Message: msg}
	}
	return &AuthError{Err: err, Message: msg}
}
