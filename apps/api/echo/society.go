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
	"github.com/trezcool/iems/core/society"
)

type societyApi struct {
	auth     *authenticator
	svc      *society.Service
	evSvc    *event.Service
	uploader uploader
	validate *validator.Validate
}

func registerSocietyAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := societyApi{
		auth:     auth,
		svc:      deps.SocietySvc,
		evSvc:    deps.EventSvc,
		uploader: uploader{svc: deps.FileSvc},
		validate: deps.Validate,
	}
	jwt := auth.required()
	admin := adminMiddleware(auth)

	sg := g.Group("/societies")
	sg.GET("", api.list)
	sg.POST("", api.create, jwt, admin)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, jwt)
	sg.DELETE("/:id", api.destroy, jwt, admin)
	sg.GET("/:id/events", api.events, auth.optional())
	sg.POST("/:id/logo", api.uploadLogo, jwt, uploadBodyLimit(files.MaxImageSizeBytes))
	sg.POST("/:id/heads", api.assignHead, jwt, admin)
	sg.DELETE("/:id/heads/:role", api.removeHead, jwt, admin)
}

// Handlers

func (api *societyApi) list(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	socs, err := api.svc.List(ctx.Request().Context(), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing societies")
	}
	if socs == nil {
		socs = []society.Society{}
	}
	return ctx.JSON(http.StatusOK, socs)
}

func (api *societyApi) create(ctx echo.Context) error {
	var data society.NewSociety
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSociety")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	soc, err := api.svc.Create(ctx.Request().Context(), data, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "creating society")
	}
	return ctx.JSON(http.StatusCreated, soc)
}

func (api *societyApi) retrieve(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	soc, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding society")
	}
	heads, err := api.svc.ResolveHeads(reqCtx, soc)
	if err != nil {
		return errors.Wrap(err, "resolving heads")
	}
	return ctx.JSON(http.StatusOK, SocietyResponse{Society: soc, HeadDetails: heads})
}

func (api *societyApi) update(ctx echo.Context) error {
	var data society.UpdateSociety
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSociety")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	soc, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "updating society")
	}
	return ctx.JSON(http.StatusOK, soc)
}

func (api *societyApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), api.auth.actor(ctx)); err != nil {
		return errors.Wrap(err, "deleting society")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *societyApi) events(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	soc, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding society")
	}

	filter := new(event.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []event.Event{})
	}
	filter.SocietyID = soc.ID
	ordering := new(Ordering)
	ordering.Bind(ctx)

	evts, err := api.evSvc.List(reqCtx, filter, ordering.Orderings, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "listing society events")
	}
	if evts == nil {
		evts = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, evts)
}

func (api *societyApi) uploadLogo(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	soc, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding society")
	}
	actor := api.auth.actor(ctx)
	if !privilege.CanEdit(actor, soc.ID) {
		return core.ErrPermissionDenied
	}

	stored, err := api.uploader.upload(ctx, "societies", soc.ID, "logos", files.KindImage)
	if err != nil {
		return err
	}
	if soc, err = api.svc.SetLogo(reqCtx, soc.ID, stored.URL, actor); err != nil {
		api.uploader.discard(ctx, stored)
		return errors.Wrap(err, "setting society logo")
	}
	return ctx.JSON(http.StatusOK, soc)
}

func (api *societyApi) assignHead(ctx echo.Context) error {
	var data society.AssignHead
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignHead")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.AssignHead(ctx.Request().Context(), ctx.Param("id"), data, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "assigning head")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *societyApi) removeHead(ctx echo.Context) error {
	heads, err := api.svc.RemoveHead(ctx.Request().Context(), ctx.Param("id"), ctx.Param("role"), api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "removing head")
	}
	if heads == nil { // the slot was already vacant
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, heads)
}

type SocietyResponse struct {
	society.Society
	HeadDetails []society.HeadInfo `json:"head_details"`
}
