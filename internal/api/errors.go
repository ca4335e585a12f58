package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"paranoid-backend/internal/softdelete"
	"paranoid-backend/internal/store"
)

type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func UnknownModelError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_MODEL",
		Status:  404,
		Message: fmt.Sprintf("Unknown model: %s", name),
	}
}

// ErrorHandler converts errors bubbling out of handlers into the JSON error
// envelope. Rewrite-rule errors map to 422 because the request itself was
// rejected before anything executed.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var relErr *softdelete.RelationSafetyError
	if errors.As(err, &relErr) {
		return c.Status(422).JSON(ErrorResponse{Error: &AppError{
			Code: "UNSAFE_RELATION_WRITE", Status: 422, Message: relErr.Error(),
		}})
	}
	var guardErr *softdelete.UniqueIndexGuardError
	if errors.As(err, &guardErr) {
		return c.Status(422).JSON(ErrorResponse{Error: &AppError{
			Code: "COMPOUND_UNIQUE_REJECTED", Status: 422, Message: guardErr.Error(),
		}})
	}
	var cfgErr *softdelete.ConfigError
	if errors.As(err, &cfgErr) {
		return c.Status(500).JSON(ErrorResponse{Error: &AppError{
			Code: "CONFIG_INVALID", Status: 500, Message: cfgErr.Error(),
		}})
	}
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(404).JSON(ErrorResponse{Error: &AppError{
			Code: "NOT_FOUND", Status: 404, Message: err.Error(),
		}})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: &AppError{
			Code: "HTTP_ERROR", Status: fiberErr.Code, Message: fiberErr.Message,
		}})
	}

	return c.Status(500).JSON(ErrorResponse{Error: &AppError{
		Code: "INTERNAL_ERROR", Status: 500, Message: "Internal server error",
	}})
}
