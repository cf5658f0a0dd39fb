// Package response writes the admin API's JSON envelope.
package response

import (
	"errors"
	"time"

	"campaign_sync/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// =============================================================================
// Envelope
// =============================================================================

type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Meta      *Meta      `json:"meta,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Timestamp string     `json:"timestamp"`
}

type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type Meta struct {
	Total int    `json:"total"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

func envelope(c *fiber.Ctx) Response {
	requestID, _ := c.Locals("request_id").(string)
	return Response{RequestID: requestID, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// =============================================================================
// Builders
// =============================================================================

func OK(c *fiber.Ctx, data any) error {
	r := envelope(c)
	r.Success, r.Data = true, data
	return c.JSON(r)
}

func OKWithMeta(c *fiber.Ctx, data any, meta *Meta) error {
	r := envelope(c)
	r.Success, r.Data, r.Meta = true, data, meta
	return c.JSON(r)
}

func Created(c *fiber.Ctx, data any) error {
	r := envelope(c)
	r.Success, r.Data = true, data
	return c.Status(fiber.StatusCreated).JSON(r)
}

// Accepted is used for work that continues after the response.
func Accepted(c *fiber.Ctx, data any) error {
	r := envelope(c)
	r.Success, r.Data = true, data
	return c.Status(fiber.StatusAccepted).JSON(r)
}

func Error(c *fiber.Ctx, status int, code, message string) error {
	r := envelope(c)
	r.Error = &ErrorInfo{Code: code, Message: message}
	return c.Status(status).JSON(r)
}

// FromError renders err, using the AppError code and status when present.
// Other errors become a 500 without leaking their text.
func FromError(c *fiber.Ctx, err error) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		r := envelope(c)
		r.Error = &ErrorInfo{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
		return c.Status(appErr.HTTPStatus()).JSON(r)
	}
	return InternalError(c, "internal server error")
}

func InternalError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, apperr.CodeInternalError, message)
}
