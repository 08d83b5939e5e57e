package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/capture"
	"github.com/localnerve/eagleview/internal/gateway"
	"github.com/localnerve/eagleview/internal/session"
	"github.com/localnerve/eagleview/internal/types"
	"github.com/localnerve/eagleview/internal/vision"
	"github.com/stretchr/testify/assert"
)

func TestToCustomError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantType string
		wantMsg  string
	}{
		{"custom passes through", types.NewError(400, types.TypeValidation, "bad role"), 400, types.TypeValidation, "bad role"},
		{"email in use", &gateway.AuthError{Err: gateway.ErrEmailInUse, Message: "The email address is already in use by another account"}, 409, types.TypeAuth, "The email address is already in use by another account"},
		{"invalid credentials", &gateway.AuthError{Err: gateway.ErrInvalidCredentials, Message: "Invalid email or password"}, 401, types.TypeAuth, "Invalid email or password"},
		{"other provider error", &gateway.AuthError{Err: errors.New("weak password"), Message: "Password is too short"}, 400, types.TypeAuth, "Password is too short"},
		{"vision", fmt.Errorf("analyze: %w", &vision.Error{Reason: "timeout", Err: context.DeadlineExceeded}), 502, types.TypeVision, vision.FriendlyMessage},
		{"no vision", session.ErrNoVision, 503, types.TypeVision, vision.FriendlyMessage},
		{"analysis busy", session.ErrBusy, 429, types.TypeTransient, ""},
		{"capture busy", capture.ErrBusy, 429, types.TypeTransient, ""},
		{"unsupported image", capture.ErrUnsupported, 415, types.TypeValidation, ""},
		{"too large", capture.ErrTooLarge, 413, types.TypeValidation, ""},
		{"signed out", session.ErrNotSignedIn, 401, types.TypeSession, ""},
		{"bad token", gateway.ErrNotAuthenticated, 401, types.TypeSession, ""},
		{"caregiver only", session.ErrCaregiverOnly, 403, types.TypeAuth, ""},
		{"unknown senior", session.ErrUnknownSenior, 403, types.TypeAuth, ""},
		{"no target", session.ErrNoTarget, 409, types.TypeSession, ""},
		{"closed", session.ErrClosed, 410, types.TypeSession, ""},
		{"not found", fmt.Errorf("lookup: %w", gateway.ErrNotFound), 404, types.TypeNotFound, ""},
		{"deadline", context.DeadlineExceeded, 504, types.TypeTransient, genericMessage},
		{"fiber error", fiber.NewError(fiber.StatusMethodNotAllowed, "Method Not Allowed"), 405, types.TypeTransient, "Method Not Allowed"},
		{"unknown", errors.New("disk on fire"), 500, types.TypeTransient, genericMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toCustomError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantType, got.Type)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, got.Message)
			}
			assert.NotContains(t, got.Message, "disk on fire")
		})
	}
}
