package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/files"
	"github.com/trezcool/iems/core/privilege"
)

type speakerApi struct {
	auth     *authenticator
	svc      *event.Service
	uploader uploader
	validate *validator.Validate
}

func registerSpeakerAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := speakerApi{
		auth:     auth,
		svc:      deps.EventSvc,
		uploader: uploader{svc: deps.FileSvc},
		validate: deps.Validate,
	}
	jwt := auth.required()

	sg := g.Group("/speakers")
	sg.GET("", api.list)
	sg.POST("", api.create, jwt)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, jwt)
	sg.DELETE("/:id", api.destroy, jwt)
	sg.POST("/:id/photo", api.uploadPhoto, jwt, uploadBodyLimit(files.MaxImageSizeBytes))
}

// Handlers

// list returns the speakers named by the `id` query params, or all of them.
func (api *speakerApi) list(ctx echo.Context) error {
	var query SpeakersRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to SpeakersRequest")
	}

	speakers, err := api.svc.ListSpeakers(ctx.Request().Context(), query.IDs)
	if err != nil {
		return errors.Wrap(err, "listing speakers")
	}
	if speakers == nil {
		speakers = []event.Speaker{}
	}
	return ctx.JSON(http.StatusOK, speakers)
}

func (api *speakerApi) create(ctx echo.Context) error {
	var data event.NewSpeaker
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSpeaker")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	spk, err := api.svc.CreateSpeaker(ctx.Request().Context(), data, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "creating speaker")
	}
	return ctx.JSON(http.StatusCreated, spk)
}

func (api *speakerApi) retrieve(ctx echo.Context) error {
	spk, err := api.svc.GetSpeaker(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding speaker")
	}
	return ctx.JSON(http.StatusOK, spk)
}

func (api *speakerApi) update(ctx echo.Context) error {
	var data event.UpdateSpeaker
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSpeaker")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	spk, err := api.svc.UpdateSpeaker(ctx.Request().Context(), ctx.Param("id"), data, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "updating speaker")
	}
	return ctx.JSON(http.StatusOK, spk)
}

func (api *speakerApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteSpeaker(ctx.Request().Context(), ctx.Param("id"), api.auth.actor(ctx)); err != nil {
		return errors.Wrap(err, "deleting speaker")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *speakerApi) uploadPhoto(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor := api.auth.actor(ctx)
	if actor.IsAnonymous() || !privilege.CanManageSociety(actor.Privilege) {
		return core.ErrPermissionDenied
	}
	spk, err := api.svc.GetSpeaker(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding speaker")
	}

	stored, err := api.uploader.upload(ctx, "speakers", spk.ID, "photos", files.KindImage)
	if err != nil {
		return err
	}
	if spk, err = api.svc.SetSpeakerPhoto(reqCtx, spk.ID, stored.URL, actor); err != nil {
		api.uploader.discard(ctx, stored)
		return errors.Wrap(err, "setting speaker photo")
	}
	return ctx.JSON(http.StatusOK, spk)
}

type SpeakersRequest struct {
	IDs []string `query:"id"`
}
