package httpapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/priyankabp/stock-smart-kitchen/internal/forecast"
	"github.com/priyankabp/stock-smart-kitchen/internal/inventory"
	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
	"github.com/priyankabp/stock-smart-kitchen/internal/query"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeValidation       = "VAL_001"
	CodePayloadTooLarge  = "VAL_413"
	CodeUnknownLocation  = "LOC_404"
	CodeItemNotFound     = "INV_404"
	CodeNoPendingOrder   = "INV_409"
	CodeInsufficientData = query.CodeInsufficientData
	CodeTimeout          = "QRY_408"
	CodeRateLimited      = "RATE_429"
	CodeNotFound         = "RES_404"
	CodeInternal         = "SRV_001"
)

// APIError is an error with a known HTTP status and code.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *APIError) Error() string {
	return e.Message
}

func badRequest(format string, args ...any) *APIError {
	return &APIError{Status: fiber.StatusBadRequest, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ErrorHandler renders every error returned by a handler as
// {"error": true, "code": ..., "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	apiErr := toAPIError(err)

	if apiErr.Status >= fiber.StatusInternalServerError {
		log.ForContext(c.UserContext()).WithError(err).WithField("path", c.Path()).Error("request failed")
	}

	body := fiber.Map{
		"error":   true,
		"code":    apiErr.Code,
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	return c.Status(apiErr.Status).JSON(body)
}

func toAPIError(err error) *APIError {
	var (
		apiErr   *APIError
		fiberErr *fiber.Error
		valErr   *kitchen.ValidationError
		dataErr  *kitchen.InsufficientDataError
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &fiberErr):
		code := CodeInternal
		switch fiberErr.Code {
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			code = CodeValidation
		case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
			code = CodeNotFound
		case fiber.StatusRequestEntityTooLarge:
			code = CodePayloadTooLarge
		case fiber.StatusTooManyRequests:
			code = CodeRateLimited
		}
		return &APIError{Status: fiberErr.Code, Code: code, Message: fiberErr.Message}
	case errors.As(err, &valErr):
		return &APIError{Status: fiber.StatusBadRequest, Code: CodeValidation, Message: valErr.Error(), Details: []*kitchen.ValidationError{valErr}}
	case errors.As(err, &dataErr):
		return &APIError{Status: fiber.StatusUnprocessableEntity, Code: CodeInsufficientData, Message: dataErr.Error(),
			Details: fiber.Map{"have": dataErr.Have, "need": dataErr.Need}}
	case errors.Is(err, kitchen.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &APIError{Status: fiber.StatusRequestTimeout, Code: CodeTimeout, Message: "query timed out"}
	case errors.Is(err, context.Canceled):
		return &APIError{Status: fiber.StatusRequestTimeout, Code: CodeTimeout, Message: "request cancelled"}
	case errors.Is(err, kitchen.ErrInvalidRange), errors.Is(err, forecast.ErrInvalidHorizon):
		return &APIError{Status: fiber.StatusBadRequest, Code: CodeValidation, Message: err.Error()}
	case errors.Is(err, kitchen.ErrUnknownLocation):
		return &APIError{Status: fiber.StatusNotFound, Code: CodeUnknownLocation, Message: err.Error()}
	case errors.Is(err, kitchen.ErrItemNotFound):
		return &APIError{Status: fiber.StatusNotFound, Code: CodeItemNotFound, Message: err.Error()}
	case errors.Is(err, inventory.ErrNoPendingOrder):
		return &APIError{Status: fiber.StatusConflict, Code: CodeNoPendingOrder, Message: err.Error()}
	default:
		return &APIError{Status: fiber.StatusInternalServerError, Code: CodeInternal, Message: "internal server error"}
	}
}
