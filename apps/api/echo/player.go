package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

type playerApi struct {
	svc      *scorm.Service
	validate *validator.Validate
}

func registerPlayerAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *scorm.Service, validate *validator.Validate) {
	api := playerApi{
		svc:      svc,
		validate: validate,
	}

	g.POST("/courses/:courseId/player", api.load, jwt)

	pg := g.Group("/players/:playerId", jwt)
	pg.GET("", api.retrieve)
	pg.DELETE("", api.teardown)
	pg.PUT("/unit", api.activate)
	pg.POST("/loaded", api.loaded)
	pg.POST("/api", api.call)
}

type loadRequest struct {
	CourseID string `json:"course_id" validate:"required,courseid"`
}

// Handlers

func (api *playerApi) load(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	data := loadRequest{CourseID: ctx.Param("courseId")}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	p, err := api.svc.Load(ctx.Request().Context(), data.CourseID, learner)
	if err != nil {
		return errors.Wrap(err, "loading player")
	}
	return ctx.JSON(http.StatusCreated, p.View())
}

func (api *playerApi) retrieve(ctx echo.Context) error {
	p, err := api.contextPlayer(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p.View())
}

func (api *playerApi) activate(ctx echo.Context) error {
	p, err := api.contextPlayer(ctx)
	if err != nil {
		return err
	}

	var data activateRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to activateRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	// out-of-range indices leave the player as it is
	if _, err = p.Activate(ctx.Request().Context(), *data.Index); err != nil {
		return errors.Wrap(err, "activating unit")
	}
	return ctx.JSON(http.StatusOK, p.View())
}

func (api *playerApi) loaded(ctx echo.Context) error {
	p, err := api.contextPlayer(ctx)
	if err != nil {
		return err
	}
	p.MarkLoaded()
	return ctx.JSON(http.StatusOK, p.View())
}

func (api *playerApi) call(ctx echo.Context) error {
	p, err := api.contextPlayer(ctx)
	if err != nil {
		return err
	}

	var data callRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to callRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	args, err := data.StringArgs()
	if err != nil {
		return err
	}

	res, err := p.Call(data.UnitID, data.Method, args...)
	if err != nil {
		return errors.Wrapf(err, "calling %s", data.Method)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *playerApi) teardown(ctx echo.Context) error {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Teardown(ctx.Param("playerId"), learner.ID); err != nil {
		return errors.Wrap(err, "tearing down player")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// contextPlayer returns the player named in the path, provided it belongs to the context learner.
func (api *playerApi) contextPlayer(ctx echo.Context) (*scorm.Player, error) {
	learner, err := getContextLearner(ctx)
	if err != nil {
		return nil, err
	}
	return api.svc.Get(ctx.Param("playerId"), learner.ID)
}
