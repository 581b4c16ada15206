package fhir

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ThrottleOutcome creates a 429-style OperationOutcome indicating the server is
// rate-limiting the client.
func ThrottleOutcome() *OperationOutcome {
	return NewOperationOutcome(
		IssueSeverityError,
		IssueTypeThrottled,
		"Rate limit exceeded. Please retry after a delay.",
	)
}

// TooLargeOutcome reports a request body above limit bytes.
func TooLargeOutcome(limit int64) *OperationOutcome {
	return NewOperationOutcome(
		IssueSeverityError,
		IssueTypeTooLong,
		fmt.Sprintf("Request body exceeds maximum allowed size of %d bytes", limit),
	)
}

// ErrorHandler renders every error that reaches echo as an OperationOutcome.
// Errors that are not *echo.HTTPError are logged and reported as 500 without
// their message.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := http.StatusText(status)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		} else {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, OutcomeForStatus(status, msg))
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}
