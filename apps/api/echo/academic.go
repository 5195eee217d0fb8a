package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/academic"
)

type academicAPI struct {
	auth     *authenticator
	svc      *academic.Service
	validate *validator.Validate
}

func registerAcademicAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := academicAPI{
		auth:     auth,
		svc:      deps.AcademicSvc,
		validate: deps.Validate,
	}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.createSession, adminMiddleware())
	sg.GET("", api.querySessions, staffMiddleware())
	sg.PUT("/:id/activate", api.activateSession, adminMiddleware())

	cg := g.Group("/classes", jwt)
	cg.POST("", api.createClass, adminMiddleware())
	cg.GET("", api.queryClasses, staffMiddleware())
}

// Handlers

func (api *academicAPI) createSession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data academic.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	session, err := api.svc.CreateSession(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return respond(ctx, http.StatusCreated, session, "session created")
}

func (api *academicAPI) querySessions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sessions, err := api.svc.QuerySessions(ctx.Request().Context(), claims.SchoolID)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []academic.Session{}
	}
	return respond(ctx, http.StatusOK, sessions, "")
}

func (api *academicAPI) activateSession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	session, err := api.svc.ActivateSession(ctx.Request().Context(), claims.SchoolID, id)
	if err != nil {
		return errors.Wrap(err, "activating session")
	}
	return respond(ctx, http.StatusOK, session, "session activated")
}

func (api *academicAPI) createClass(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var data academic.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	class, err := api.svc.CreateClass(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return respond(ctx, http.StatusCreated, class, "class created")
}

func (api *academicAPI) queryClasses(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sessionID, err := querySessionID(ctx, api.svc, claims.SchoolID)
	if err != nil {
		return err
	}

	classes, err := api.svc.QueryClasses(ctx.Request().Context(), claims.SchoolID, sessionID)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []academic.Class{}
	}
	return respond(ctx, http.StatusOK, classes, "")
}
