package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatbridge/internal/errs"
	"chatbridge/internal/translator"
)

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	return c.JSON(status, translator.ErrorEnvelope{Error: translator.ErrorBody{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
}

func openAIErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

// toHTTPError maps the call error taxonomy onto HTTP statuses.
func toHTTPError(err error) requestError {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	code := errs.Code(err)
	switch {
	case errs.IsConfiguration(err):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error", Code: code}
	case errs.IsCredential(err):
		return requestError{Status: http.StatusBadGateway, Message: err.Error(), Type: "credential_error", Code: code}
	case errs.IsCancelled(err):
		return requestError{Status: StatusClientClosedRequest, Message: err.Error(), Type: "cancelled", Code: code}
	case errs.IsEmptyResponse(err):
		return requestError{Status: http.StatusBadGateway, Message: err.Error(), Type: "upstream_error", Code: code}
	}

	if apiErr, ok := errs.AsAPIError(err); ok {
		status := apiErr.StatusCode
		if status < http.StatusBadRequest || status > 599 {
			status = http.StatusBadGateway
		}
		return requestError{Status: status, Message: apiErr.Error(), Type: "upstream_error", Code: apiErr.Code}
	}

	return requestError{
		Status:  http.StatusBadGateway,
		Message: "upstream provider error",
		Type:    "upstream_error",
		Code:    code,
	}
}
