package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apperrors "storefront/internal/errors"
)

// MessageResponse is the acknowledgement body of write endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// httpError converts a service error into an echo error carrying an ErrorResponse.
// The original error is kept as the internal cause so it can be logged.
func httpError(err error) *echo.HTTPError {
	httpErr := apperrors.MapErrorToHTTP(err)
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse()).SetInternal(err)
}

func badRequest(message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
		Error: message,
		Code:  "INVALID_INPUT",
	})
}

// bindAndValidate decodes the body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req interface{}) *echo.HTTPError {
	if err := c.Bind(req); err != nil {
		return badRequest("invalid request body").SetInternal(err)
	}
	if err := c.Validate(req); err != nil {
		return badRequest(validationMessage(err))
	}
	return nil
}

// validationMessage turns validator errors into one short sentence naming the fields.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		switch fe.Tag() {
		case "email":
			invalid = append(invalid, fe.Field()+" must be a valid email address")
		case "max":
			invalid = append(invalid, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			invalid = append(invalid, fe.Field()+" is invalid")
		}
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, strings.Join(missing, " & ")+" required")
	}
	parts = append(parts, invalid...)
	return strings.Join(parts, "; ")
}

func parseID(c echo.Context) (uint, *echo.HTTPError) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, badRequest("invalid id")
	}
	return uint(id), nil
}
