package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizerError(t *testing.T) {
	err := authorizerError(errors.New("email is already signed up"))
	assert.ErrorIs(t, err, ErrEmailInUse)
	assert.Equal(t, "email is already signed up", err.Error())

	err = authorizerError(errors.New("bad user credentials"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	cause := errors.New("signup is disabled for this instance")
	err = authorizerError(cause)
	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, ErrEmailInUse))
}

func TestIdentityOf(t *testing.T) {
	id, email := identityOf(map[string]interface{}{"id": "u-1", "email": "betty@example.com"})
	assert.Equal(t, "u-1", id)
	assert.Equal(t, "betty@example.com", email)

	id, _ = identityOf(nil)
	assert.Empty(t, id)
}

func TestBearer(t *testing.T) {
	assert.Equal(t, map[string]string{"Authorization": "Bearer tok"}, bearer("tok"))
}
