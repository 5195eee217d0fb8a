package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
)

const sessionIDParam = "sessionId"

// queryID reads a positive ID from the query string. 0 means absent, unless required.
func queryID(ctx echo.Context, name string, required bool) (int64, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		if required {
			return 0, core.NewValidationError(
				errors.Errorf("%s is required", name),
				core.FieldError{Field: name, Error: name + " is a required field"},
			)
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError(
			errors.Errorf("%s must be a positive integer", name),
			core.FieldError{Field: name, Error: name + " must be a positive integer"},
		)
	}
	return id, nil
}

// paramID reads a positive ID from the route path; anything else is a 404.
func paramID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHTTPNotFound
	}
	return id, nil
}

// querySessionID falls back to the school's active session when `sessionId` is not given.
func querySessionID(ctx echo.Context, svc *academic.Service, schoolID int64) (int64, error) {
	id, err := queryID(ctx, sessionIDParam, false)
	if err != nil || id != 0 {
		return id, err
	}
	sc, err := svc.ResolveSessionContext(ctx.Request().Context(), schoolID)
	if err != nil {
		return 0, err
	}
	return sc.Session.ID, nil
}
