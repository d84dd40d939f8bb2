package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medisutra/bridge/internal/platform/fhir"
)

// errorResponse answers FHIR paths with an OperationOutcome and returns an
// echo.HTTPError for everything else.
func errorResponse(c echo.Context, status int, issueCode, msg string) error {
	if isFHIRPath(c.Request().URL.Path) {
		if c.Response().Committed {
			return nil
		}
		return c.JSON(status, fhir.NewOperationOutcome("error", issueCode, msg))
	}
	return echo.NewHTTPError(status, msg)
}

func isFHIRPath(path string) bool {
	return path == "/fhir" || strings.HasPrefix(path, "/fhir/")
}
