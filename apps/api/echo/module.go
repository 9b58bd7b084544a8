package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/files"
)

type moduleApi struct {
	auth     *authenticator
	svc      *event.Service
	uploader uploader
	validate *validator.Validate
}

func registerModuleAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := moduleApi{
		auth:     auth,
		svc:      deps.EventSvc,
		uploader: uploader{svc: deps.FileSvc},
		validate: deps.Validate,
	}
	jwt := auth.required()

	mg := g.Group("/modules/:id")
	mg.GET("", api.retrieve, auth.optional())
	mg.PUT("", api.update, jwt)
	mg.DELETE("", api.destroy, jwt)
	mg.POST("/document", api.uploadDocument, jwt, uploadBodyLimit(files.MaxDocumentSizeBytes))
}

// Handlers

// retrieve returns the module if its event is visible to the caller.
func (api *moduleApi) retrieve(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	mod, err := api.svc.GetModule(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding module")
	}
	if _, err = api.svc.Get(reqCtx, mod.EventID, api.auth.actor(ctx)); err != nil {
		return event.ErrModuleNotFound
	}
	return ctx.JSON(http.StatusOK, mod)
}

func (api *moduleApi) update(ctx echo.Context) error {
	var data event.UpdateModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateModule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mod, err := api.svc.UpdateModule(ctx.Request().Context(), ctx.Param("id"), data, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "updating module")
	}
	return ctx.JSON(http.StatusOK, mod)
}

func (api *moduleApi) destroy(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	mod, err := api.svc.GetModule(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding module")
	}
	if err = api.svc.DeleteModule(reqCtx, mod.ID, api.auth.actor(ctx)); err != nil {
		return errors.Wrap(err, "deleting module")
	}
	if mod.Document != nil {
		api.uploader.svc.Remove(reqCtx, mod.Document.Path)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *moduleApi) uploadDocument(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor := api.auth.actor(ctx)
	mod, err := api.svc.GetModule(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding module")
	}
	if _, err = api.svc.Authorize(reqCtx, mod.EventID, actor); err != nil {
		return errors.Wrap(err, "authorizing event")
	}

	stored, err := api.uploader.upload(ctx, "modules", mod.ID, "documents", files.KindDocument)
	if err != nil {
		return err
	}
	previous := mod.Document
	mod, err = api.svc.SetModuleDocument(reqCtx, mod.ID, event.Document{
		Name:        stored.Name,
		URL:         stored.URL,
		Path:        stored.Path,
		Size:        stored.Size,
		ContentType: stored.ContentType,
	}, actor)
	if err != nil {
		api.uploader.discard(ctx, stored)
		return errors.Wrap(err, "setting module document")
	}
	if previous != nil && previous.Path != stored.Path {
		api.uploader.svc.Remove(reqCtx, previous.Path)
	}
	return ctx.JSON(http.StatusOK, mod)
}
