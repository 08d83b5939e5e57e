package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLocalIdentity_RegisterLoginRestore(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	id := NewLocalIdentity(kv).WithCost(bcrypt.MinCost)

	var events []AuthEvent
	unsubscribe := id.OnAuthEvent(func(ev AuthEvent) { events = append(events, ev) })
	defer unsubscribe()

	uid, err := id.Register(ctx, Credential{Email: "betty@example.com", Password: "s3cret!"})
	require.NoError(t, err)
	require.NotEmpty(t, uid)
	token := id.Token()
	require.NotEmpty(t, token)

	_, err = id.Register(ctx, Credential{Email: "BETTY@example.com", Password: "other"})
	assert.ErrorIs(t, err, ErrEmailInUse)
	assert.Equal(t, "The email address is already in use by another account", err.Error())

	_, err = id.Authenticate(ctx, Credential{Email: "betty@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	again, err := id.Authenticate(ctx, Credential{Email: "betty@example.com", Password: "s3cret!"})
	require.NoError(t, err)
	assert.Equal(t, uid, again)

	// a second handle restores the first handle's session
	other := NewLocalIdentity(kv)
	restored, err := other.Restore(ctx, id.Token())
	require.NoError(t, err)
	assert.Equal(t, uid, restored)

	current := id.Token()
	assert.NotEqual(t, token, current)
	require.NoError(t, id.SignOut(ctx))
	assert.Empty(t, id.Token())
	_, err = NewLocalIdentity(kv).Restore(ctx, current)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.Len(t, events, 3)
	assert.Equal(t, SignedIn, events[0].Kind)
	assert.Equal(t, "betty@example.com", events[0].Email)
	assert.Equal(t, SignedIn, events[1].Kind)
	assert.Equal(t, SignedOut, events[2].Kind)
}

func TestLocalIdentity_SecondaryKeepsPrimarySession(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	id := NewLocalIdentity(kv).WithCost(bcrypt.MinCost)

	caregiver, err := id.Register(ctx, Credential{Email: "carol@example.com", Password: "pw1"})
	require.NoError(t, err)
	token := id.Token()

	var events []AuthEvent
	id.OnAuthEvent(func(ev AuthEvent) { events = append(events, ev) })

	senior, err := id.RegisterAsSecondaryIdentity(ctx, Credential{Email: "betty@example.com", Password: "pw2"})
	require.NoError(t, err)
	assert.NotEqual(t, caregiver, senior)
	assert.Equal(t, token, id.Token())
	assert.Empty(t, events)

	// the senior can log in on their own handle
	got, err := NewLocalIdentity(kv).Authenticate(ctx, Credential{Email: "betty@example.com", Password: "pw2"})
	require.NoError(t, err)
	assert.Equal(t, senior, got)
}
