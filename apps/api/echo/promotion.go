package echoapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/promotion"
	exportsvc "github.com/trezcool/academia/services/export"
)

type promotionAPI struct {
	auth     *authenticator
	svc      *promotion.Service
	academic *academic.Service
	validate *validator.Validate
}

func registerPromotionAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := promotionAPI{
		auth:     auth,
		svc:      deps.PromotionSvc,
		academic: deps.AcademicSvc,
		validate: deps.Validate,
	}

	pg := g.Group("/promotions", jwt)

	// teachers
	pg.POST("/assign", api.assign, teacherMiddleware())
	pg.GET("/class/:classId", api.listByClass, teacherMiddleware())
	pg.GET("/student/:pan", api.getForStudent, staffMiddleware())
	pg.DELETE("/:id", api.delete, teacherMiddleware())

	// admins
	pg.POST("/execute", api.execute, adminMiddleware())
	pg.GET("/pending", api.listPending, adminMiddleware())
	pg.GET("/session/:sessionId", api.listBySession, adminMiddleware())
	pg.GET("/session/:sessionId/export", api.export, adminMiddleware())
}

// Handlers

func (api *promotionAPI) assign(ctx echo.Context) error {
	teacher, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data promotion.AssignRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sc, err := api.academic.ResolveSessionContext(ctx.Request().Context(), teacher.SchoolID)
	if err != nil {
		return errors.Wrap(err, "resolving session context")
	}
	p, err := api.svc.Assign(ctx.Request().Context(), sc, teacher, data)
	if err != nil {
		return errors.Wrap(err, "assigning promotion")
	}
	return respond(ctx, http.StatusOK, p, "promotion assigned")
}

func (api *promotionAPI) listByClass(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	classID, err := paramID(ctx, "classId")
	if err != nil {
		return err
	}
	sessionID, err := querySessionID(ctx, api.academic, claims.SchoolID)
	if err != nil {
		return err
	}

	promos, err := api.svc.ListByClass(ctx.Request().Context(), claims.SchoolID, classID, sessionID)
	if err != nil {
		return errors.Wrap(err, "listing class promotions")
	}
	return respond(ctx, http.StatusOK, nonNil(promos), "")
}

func (api *promotionAPI) getForStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sessionID, err := querySessionID(ctx, api.academic, claims.SchoolID)
	if err != nil {
		return err
	}

	p, err := api.svc.GetForStudent(ctx.Request().Context(), claims.SchoolID, ctx.Param("pan"), sessionID)
	if err != nil {
		if core.IsNotFound(err) {
			return respond(ctx, http.StatusOK, nil, "no promotion assigned yet")
		}
		return errors.Wrap(err, "getting student promotion")
	}
	return respond(ctx, http.StatusOK, p, "")
}

func (api *promotionAPI) delete(ctx echo.Context) error {
	actor, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting promotion")
	}
	return respond(ctx, http.StatusOK, nil, "promotion deleted")
}

func (api *promotionAPI) execute(ctx echo.Context) error {
	admin, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	fromID, err := queryID(ctx, "fromSessionId", true)
	if err != nil {
		return err
	}
	toID, err := queryID(ctx, "toSessionId", true)
	if err != nil {
		return err
	}

	rep, err := api.svc.Execute(ctx.Request().Context(), promotion.ExecuteParams{
		SchoolID:      admin.SchoolID,
		FromSessionID: fromID,
		ToSessionID:   toID,
		RequestedBy:   &admin,
	})
	if err != nil {
		return errors.Wrap(err, "executing rollover")
	}
	return respond(ctx, http.StatusOK, rep, rep.String())
}

func (api *promotionAPI) listPending(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sessionID, err := querySessionID(ctx, api.academic, claims.SchoolID)
	if err != nil {
		return err
	}

	promos, err := api.svc.ListPending(ctx.Request().Context(), claims.SchoolID, sessionID)
	if err != nil {
		return errors.Wrap(err, "listing pending promotions")
	}
	return respond(ctx, http.StatusOK, nonNil(promos), "")
}

func (api *promotionAPI) listBySession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sessionID, err := paramID(ctx, "sessionId")
	if err != nil {
		return err
	}

	promos, err := api.svc.ListBySession(ctx.Request().Context(), claims.SchoolID, sessionID)
	if err != nil {
		return errors.Wrap(err, "listing session promotions")
	}
	return respond(ctx, http.StatusOK, nonNil(promos), "")
}

func (api *promotionAPI) export(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sessionID, err := paramID(ctx, "sessionId")
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("promotions-%d.xlsx", sessionID)
	return sendFile(ctx, filename, exportsvc.ContentType, func(w io.Writer) error {
		err := api.svc.ExportSession(ctx.Request().Context(), claims.SchoolID, sessionID, w)
		return errors.Wrap(err, "exporting promotions")
	})
}

func nonNil(promos []promotion.Promotion) []promotion.Promotion {
	if promos == nil {
		return []promotion.Promotion{}
	}
	return promos
}
