package echoapi

import (
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/planning"
)

const uploadField = "file"

type planningApi struct {
	svc           *planning.Service
	validate      *validator.Validate
	maxUploadSize int64
}

func registerPlanningAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *planning.Service, validate *validator.Validate, maxUploadSize int64) {
	api := planningApi{svc: svc, validate: validate, maxUploadSize: maxUploadSize}

	pg := g.Group("/plans", authed...)
	pg.POST("", api.findOrCreate)
	pg.GET("/:id", api.retrieve)
	pg.PUT("/:id/status", api.changeStatus)
	pg.DELETE("/:id", api.reset)
	pg.POST("/:id/attachments", api.addAttachment)
	pg.POST("/:id/comments", api.addComment)

	ag := g.Group("/attachments", authed...)
	ag.GET("/:id/download", api.downloadAttachment)
	ag.DELETE("/:id", api.removeAttachment)

	cg := g.Group("/comments", authed...)
	cg.DELETE("/:id", api.removeComment)
}

func (api *planningApi) findOrCreate(ctx echo.Context) error {
	var key planning.Key
	if err := ctx.Bind(&key); err != nil {
		return errors.Wrap(err, "binding to planning.Key")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	plan, created, err := api.svc.FindOrCreate(ctx.Request().Context(), usr, key)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return ctx.JSON(status, FindOrCreateResponse{PlanningID: plan.ID, Status: plan.Status, Created: created})
}

func (api *planningApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	detail, err := api.svc.GetDetail(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *planningApi) changeStatus(ctx echo.Context) error {
	var data planning.StatusChange
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to planning.StatusChange")
	}
	// action is the only field: report it with its stable code
	if err := api.validate.Struct(data); err != nil {
		return planning.ErrInvalidAction
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	detail, err := api.svc.Transition(ctx.Request().Context(), usr, ctx.Param("id"), data.Action)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *planningApi) reset(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	key, err := api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ResetResponse{Reset: key})
}

func (api *planningApi) addAttachment(ctx echo.Context) error {
	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return core.NewValidationError(err, core.FieldError{Field: uploadField, Error: "this field is required"})
		}
		return errors.Wrap(err, "reading uploaded file")
	}
	if api.maxUploadSize > 0 && fh.Size > api.maxUploadSize {
		return errFileTooLarge
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	detail, err := api.svc.AddAttachment(ctx.Request().Context(), usr, ctx.Param("id"), planning.NewAttachment{
		Name:     fh.Filename,
		MimeType: fh.Header.Get(echo.HeaderContentType),
		Size:     fh.Size,
		Content:  f,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, detail.Attachments)
}

func (api *planningApi) downloadAttachment(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	att, rc, err := api.svc.OpenAttachment(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return err
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": att.OriginalName})
	ctx.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return ctx.Stream(http.StatusOK, att.MimeType, rc)
}

func (api *planningApi) removeAttachment(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if _, err = api.svc.RemoveAttachment(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *planningApi) addComment(ctx echo.Context) error {
	var data CommentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CommentRequest")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	detail, err := api.svc.AddComment(ctx.Request().Context(), usr, ctx.Param("id"), data.Text)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, detail.Comments)
}

func (api *planningApi) removeComment(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if _, err = api.svc.RemoveComment(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
