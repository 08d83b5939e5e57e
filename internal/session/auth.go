package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/localnerve/eagleview/internal/gateway"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/localnerve/eagleview/internal/types"
	"go.uber.org/zap"
)

// SignUp registers an account, writes its profile and waits for the session to settle on it.
// Provider errors are returned as is.
func (c *Core) SignUp(ctx context.Context, email, password, name string, role models.Role) (models.User, error) {
	if !role.Valid() {
		return models.User{}, types.NewError(http.StatusBadRequest, types.TypeValidation, fmt.Sprintf("invalid role %q", role))
	}
	if name == "" {
		name = models.NameFromEmail(email)
	}

	seq := c.seq()
	id, err := c.identity.Register(ctx, gateway.Credential{Email: email, Password: password, Name: name})
	if err != nil {
		return models.User{}, err
	}

	profile := models.User{ID: id, Name: name, Email: email, Role: role}
	if err := c.store.UpsertProfile(ctx, profile); err != nil {
		// the sign in still completes on a healed default profile
		c.log.Warn("failed to write new profile", zap.String("user_id", id), zap.Error(err))
		if werr := c.awaitUser(ctx, seq, id); werr != nil {
			return models.User{}, werr
		}
		return models.User{}, fmt.Errorf("account created but profile could not be saved: %w", err)
	}

	if err := c.awaitUser(ctx, seq, id); err != nil {
		return models.User{}, err
	}

	// the sign in may have resolved a healed default before the profile write landed
	current, ok := c.CurrentUser()
	if ok && current.ID == id && (current.Name != profile.Name || current.Role != profile.Role) {
		done := make(chan struct{})
		if !c.enqueue(event{adopt: &profile, done: done}) {
			return models.User{}, ErrClosed
		}
		select {
		case <-done:
		case <-ctx.Done():
			return models.User{}, ctx.Err()
		}
	}

	user, ok := c.CurrentUser()
	if !ok {
		return models.User{}, ErrNotSignedIn
	}
	return user, nil
}

// Login authenticates and waits for the session to settle on the profile
func (c *Core) Login(ctx context.Context, email, password string) (models.User, error) {
	seq := c.seq()
	id, err := c.identity.Authenticate(ctx, gateway.Credential{Email: email, Password: password})
	if err != nil {
		return models.User{}, err
	}
	if err := c.awaitUser(ctx, seq, id); err != nil {
		return models.User{}, err
	}
	user, _ := c.CurrentUser()
	return user, nil
}

// Restore re-establishes a session from an identity token
func (c *Core) Restore(ctx context.Context, token string) (models.User, error) {
	seq := c.seq()
	id, err := c.identity.Restore(ctx, token)
	if err != nil {
		return models.User{}, err
	}
	if err := c.awaitUser(ctx, seq, id); err != nil {
		return models.User{}, err
	}
	user, _ := c.CurrentUser()
	return user, nil
}

// Logout signs out and waits for the session to clear. In-flight speech is cancelled.
func (c *Core) Logout(ctx context.Context) error {
	seq := c.seq()
	if err := c.identity.SignOut(ctx); err != nil {
		return err
	}
	return c.await(ctx, seq, func() bool { return c.user == nil })
}

func (c *Core) seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed
}

func (c *Core) awaitUser(ctx context.Context, seq uint64, id string) error {
	return c.await(ctx, seq, func() bool { return c.user != nil && c.user.ID == id })
}

// await blocks until an event after seq has been handled and cond holds. cond runs under c.mu.
func (c *Core) await(ctx context.Context, seq uint64, cond func() bool) error {
	for {
		c.mu.Lock()
		if c.processed > seq && cond() {
			c.mu.Unlock()
			return nil
		}
		settled := c.settled
		c.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closing:
			return ErrClosed
		}
	}
}
