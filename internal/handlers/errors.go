package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/capture"
	"github.com/localnerve/eagleview/internal/gateway"
	"github.com/localnerve/eagleview/internal/session"
	"github.com/localnerve/eagleview/internal/types"
	"github.com/localnerve/eagleview/internal/utils"
	"github.com/localnerve/eagleview/internal/vision"
	"go.uber.org/zap"
)

const genericMessage = "Something went wrong. Please try again."

// toCustomError maps domain errors to the HTTP status and error type the view layer shows
func toCustomError(err error) *types.CustomError {
	if ce, ok := types.AsCustomError(err); ok {
		return ce
	}

	var authErr *gateway.AuthError
	if errors.As(err, &authErr) {
		switch {
		case errors.Is(err, gateway.ErrEmailInUse):
			return types.NewError(fiber.StatusConflict, types.TypeAuth, authErr.Error())
		case errors.Is(err, gateway.ErrInvalidCredentials):
			return types.NewError(fiber.StatusUnauthorized, types.TypeAuth, authErr.Error())
		default:
			return types.NewError(fiber.StatusBadRequest, types.TypeAuth, authErr.Error())
		}
	}

	switch {
	case errors.Is(err, vision.ErrUnreadable):
		return types.NewError(fiber.StatusBadGateway, types.TypeVision, vision.FriendlyMessage)
	case errors.Is(err, session.ErrNoVision):
		return types.NewError(fiber.StatusServiceUnavailable, types.TypeVision, vision.FriendlyMessage)
	case errors.Is(err, session.ErrBusy), errors.Is(err, capture.ErrBusy):
		return types.NewError(fiber.StatusTooManyRequests, types.TypeTransient, "Still working on the last picture. Please wait a moment.")
	case errors.Is(err, capture.ErrUnsupported):
		return types.NewError(fiber.StatusUnsupportedMediaType, types.TypeValidation, "Please send a JPEG, PNG or GIF picture.")
	case errors.Is(err, capture.ErrTooLarge):
		return types.NewError(fiber.StatusRequestEntityTooLarge, types.TypeValidation, "That picture is too large.")
	case errors.Is(err, session.ErrNotSignedIn), errors.Is(err, gateway.ErrNotAuthenticated):
		return types.NewError(fiber.StatusUnauthorized, types.TypeSession, "Please sign in to continue.")
	case errors.Is(err, session.ErrCaregiverOnly):
		return types.NewError(fiber.StatusForbidden, types.TypeAuth, "Only a caregiver can do that.")
	case errors.Is(err, session.ErrUnknownSenior):
		return types.NewError(fiber.StatusForbidden, types.TypeAuth, "That senior is not in your care.")
	case errors.Is(err, session.ErrNoTarget):
		return types.NewError(fiber.StatusConflict, types.TypeSession, "Choose a senior first.")
	case errors.Is(err, session.ErrClosed):
		return types.NewError(fiber.StatusGone, types.TypeSession, "Your session has ended. Please sign in again.")
	case errors.Is(err, gateway.ErrNotFound):
		return types.NewError(fiber.StatusNotFound, types.TypeNotFound, "Not found.")
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(fiber.StatusGatewayTimeout, types.TypeTransient, genericMessage)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return types.NewError(fe.Code, types.TypeTransient, fe.Message)
	}
	return types.NewError(fiber.StatusInternalServerError, types.TypeTransient, genericMessage)
}

// ErrorHandler renders every handler error in the standard error body
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		ce := toCustomError(err)
		if ce.Code >= fiber.StatusInternalServerError {
			log.Error("request error", zap.String("path", c.Path()), zap.Int("status", ce.Code), zap.Error(err))
		}
		return utils.ErrorResponse(c, ce.Message, ce.Code, ce.Type)
	}
}

func badRequest(message string) error {
	return types.NewError(fiber.StatusBadRequest, types.TypeValidation, message)
}
