package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/fee"
)

type feeAPI struct {
	svc      *fee.Service
	validate *validator.Validate
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, _ *authenticator, deps *Deps) {
	api := feeAPI{
		svc:      deps.FeeSvc,
		validate: deps.Validate,
	}

	fg := g.Group("/fees", jwt)
	fg.POST("/structures", api.createStructure, adminMiddleware())
	fg.GET("/student/:pan", api.queryStudentFees, staffMiddleware())
}

// Handlers

func (api *feeAPI) createStructure(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data fee.NewStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStructure")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	structure, err := api.svc.CreateStructure(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating fee structure")
	}
	return respond(ctx, http.StatusCreated, structure, "fee structure created")
}

func (api *feeAPI) queryStudentFees(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	// no sessionId: fees of all the sessions
	sessionID, err := queryID(ctx, sessionIDParam, false)
	if err != nil {
		return err
	}

	fees, err := api.svc.QueryStudentFees(ctx.Request().Context(), claims.SchoolID, ctx.Param("pan"), sessionID)
	if err != nil {
		return errors.Wrap(err, "querying student fees")
	}
	if fees == nil {
		fees = []fee.Fee{}
	}
	return respond(ctx, http.StatusOK, fees, "")
}
