// gateway.go
//
// The persistence gateway contract: profiles, preferences, history and identity.
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
	"errors"

	"github.com/localnerve/eagleview/internal/models"
)

var (
	// ErrNotFound is returned when a profile or history record does not exist
	ErrNotFound = errors.New("not found")

	// ErrEmailInUse is returned by Register when the email already has an account
	ErrEmailInUse = errors.New("email already in use")

	// ErrInvalidCredentials is returned by Authenticate for a bad email/password pair
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotAuthenticated is returned by operations that need a signed in identity
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store is the document store side of the gateway
type Store interface {
	GetProfile(ctx context.Context, id string) (models.User, error)
	UpsertProfile(ctx context.Context, user models.User) error
	EnsureProfile(ctx context.Context, user models.User) (models.User, error)
	FindSeniorsOfCaregiver(ctx context.Context, caregiverID string) ([]models.User, error)

	// SubscribePreferences delivers the stored record (if any) and then every change.
	SubscribePreferences(ctx context.Context, targetID string, onChange func(models.Preferences)) (Unsubscribe, error)
	UpsertPreferences(ctx context.Context, targetID string, patch models.PreferencesPatch) (models.Preferences, error)

	InsertHistory(ctx context.Context, result models.AnalysisResult) error
	// ListHistory ordering is best effort; callers sort.
	ListHistory(ctx context.Context, targetID string, limit int) ([]models.AnalysisResult, error)
	GetHistory(ctx context.Context, id string) (models.AnalysisResult, error)
}

// Credential is an email/password pair, with a display name for registration
type Credential struct {
	Email    string
	Password string
	Name     string
}

// AuthEventKind is the kind of session transition
type AuthEventKind int

const (
	SignedIn AuthEventKind = iota
	SignedOut
	Restored
)

func (k AuthEventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case Restored:
		return "restored"
	}
	return "unknown"
}

// AuthEvent is a session transition reported by an Identity
type AuthEvent struct {
	Kind       AuthEventKind
	IdentityID string
	Email      string
}

// Identity is one identity provider session handle
type Identity interface {
	Authenticate(ctx context.Context, cred Credential) (string, error)
	Register(ctx context.Context, cred Credential) (string, error)
	// RegisterAsSecondaryIdentity creates an account without touching this handle's session.
	RegisterAsSecondaryIdentity(ctx context.Context, cred Credential) (string, error)
	Restore(ctx context.Context, token string) (string, error)
	SignOut(ctx context.Context) error
	OnAuthEvent(fn func(AuthEvent)) Unsubscribe
	// Token is the current session's access token, empty when signed out
	Token() string
}

// AuthError is a provider failure carrying the provider's user-facing message
type AuthError struct {
	Err     error
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// authEvents is the listener list shared by Identity implementations
type authEvents struct {
	listeners map[int]func(AuthEvent)
	next      int
}

func (a *authEvents) add(fn func(AuthEvent)) int {
	if a.listeners == nil {
		a.listeners = make(map[int]func(AuthEvent))
	}
	a.next++
	a.listeners[a.next] = fn
	return a.next
}

func (a *authEvents) snapshot() []func(AuthEvent) {
	fns := make([]func(AuthEvent), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	return fns
}
