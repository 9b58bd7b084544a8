package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/files"
	"github.com/trezcool/iems/core/privilege"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// qrEncode is replaced in tests.
var qrEncode = qrcode.Encode

type eventApi struct {
	auth     *authenticator
	svc      *event.Service
	uploader uploader
	logger   core.Logger
	validate *validator.Validate
	conf     *core.Config
}

func registerEventAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := eventApi{
		auth:     auth,
		svc:      deps.EventSvc,
		uploader: uploader{svc: deps.FileSvc},
		logger:   deps.Logger,
		validate: deps.Validate,
		conf:     deps.Conf,
	}
	jwt := auth.required()
	optional := auth.optional()

	g.GET("/calendar", api.calendar, optional)

	eg := g.Group("/events")
	eg.GET("", api.list, optional)
	eg.POST("", api.create, jwt)
	eg.GET("/:id", api.retrieve, optional)
	eg.PUT("/:id", api.update, jwt)
	eg.DELETE("/:id", api.destroy, jwt)
	eg.POST("/:id/image", api.uploadImage, jwt, uploadBodyLimit(files.MaxImageSizeBytes))
	eg.GET("/:id/qrcode", api.qrcode, optional)

	// sub-events
	eg.GET("/:id/modules", api.modules, optional)
	eg.POST("/:id/modules", api.createModule, jwt)

	// engagement
	eg.GET("/:id/engagement", api.engagement, jwt)
	eg.POST("/:id/like", api.like, jwt)
	eg.POST("/:id/wishlist", api.wishlist, jwt)
	eg.POST("/:id/share", api.share, jwt)
}

// Handlers

func (api *eventApi) list(ctx echo.Context) error {
	filter := new(event.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []event.Event{})
	}
	dates := new(DateRange)
	if err := dates.Bind(ctx); err != nil {
		return err
	}
	filter.From, filter.To = dates.From, dates.To
	ordering := new(Ordering)
	ordering.Bind(ctx)

	evts, err := api.svc.List(ctx.Request().Context(), filter, ordering.Orderings, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "listing events")
	}
	if evts == nil {
		evts = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, evts)
}

func (api *eventApi) calendar(ctx echo.Context) error {
	ym := new(YearMonth)
	if err := ym.Bind(ctx); err != nil {
		return err
	}

	evts, err := api.svc.Calendar(ctx.Request().Context(), ym.Year, ym.Month, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "listing calendar events")
	}
	if evts == nil {
		evts = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, evts)
}

func (api *eventApi) create(ctx echo.Context) error {
	var data event.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ev, err := api.svc.Create(ctx.Request().Context(), data, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, ev)
}

// retrieve returns the event; signed-in viewers who may not edit it are counted.
func (api *eventApi) retrieve(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor := api.auth.actor(ctx)

	ev, err := api.svc.Get(reqCtx, ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "finding event")
	}

	if !actor.IsAnonymous() {
		counted, err := api.svc.RecordView(reqCtx, ev.ID, actor)
		if err != nil {
			api.logger.Warn(fmt.Sprintf("recording view of event %s: %v", ev.ID, err), err, actor)
		} else if counted {
			ev.Metrics.Views++
		}
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventApi) update(ctx echo.Context) error {
	var data event.UpdateEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvent")
	}
	changes, err := data.Validate(api.validate)
	if err != nil {
		return err
	}

	ev, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), changes, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *eventApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), api.auth.actor(ctx)); err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *eventApi) uploadImage(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor := api.auth.actor(ctx)
	ev, err := api.svc.Authorize(reqCtx, ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "authorizing event")
	}

	stored, err := api.uploader.upload(ctx, "events", ev.ID, "images", files.KindImage)
	if err != nil {
		return err
	}
	if ev, err = api.svc.SetImage(reqCtx, ev.ID, stored.URL, actor); err != nil {
		api.uploader.discard(ctx, stored)
		return errors.Wrap(err, "setting event image")
	}
	return ctx.JSON(http.StatusOK, ev)
}

// qrcode renders a PNG QR code of the registration link, or of the event page when there is none.
func (api *eventApi) qrcode(ctx echo.Context) error {
	ev, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "finding event")
	}

	size := defaultQRSize
	if val := ctx.QueryParam("size"); val != "" {
		if size, err = strconv.Atoi(val); err != nil || size < 64 || size > maxQRSize {
			return core.NewValidationError(nil, core.FieldError{
				Field: "size",
				Error: fmt.Sprintf("size must be between 64 and %d", maxQRSize),
			})
		}
	}

	content := ev.RegistrationLink
	if content == "" {
		content = strings.TrimRight(api.conf.FrontendBaseURL, "/") + "/events/" + ev.ID
	}
	png, err := qrEncode(content, qrcode.Medium, size)
	if err != nil {
		return errors.Wrap(err, "encoding qrcode")
	}
	return ctx.Blob(http.StatusOK, "image/png", png)
}

func (api *eventApi) modules(ctx echo.Context) error {
	mods, err := api.svc.ListModules(ctx.Request().Context(), ctx.Param("id"), api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "listing modules")
	}
	if mods == nil {
		mods = []event.Module{}
	}
	return ctx.JSON(http.StatusOK, mods)
}

func (api *eventApi) createModule(ctx echo.Context) error {
	var data event.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewModule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mod, err := api.svc.CreateModule(ctx.Request().Context(), ctx.Param("id"), data, api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "creating module")
	}
	return ctx.JSON(http.StatusCreated, mod)
}

func (api *eventApi) engagement(ctx echo.Context) error {
	rec, err := api.svc.GetEngagement(ctx.Request().Context(), ctx.Param("id"), api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, "finding engagement")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *eventApi) like(ctx echo.Context) error {
	return api.engage(ctx, api.svc.ToggleLike, "toggling like")
}

func (api *eventApi) wishlist(ctx echo.Context) error {
	return api.engage(ctx, api.svc.ToggleWishlist, "toggling wishlist")
}

func (api *eventApi) share(ctx echo.Context) error {
	return api.engage(ctx, api.svc.RecordShare, "recording share")
}

type engageFunc func(ctx context.Context, id string, actor privilege.Actor) (event.EngagementRecord, error)

func (api *eventApi) engage(ctx echo.Context, fn engageFunc, action string) error {
	rec, err := fn(ctx.Request().Context(), ctx.Param("id"), api.auth.actor(ctx))
	if err != nil {
		return errors.Wrap(err, action)
	}
	return ctx.JSON(http.StatusOK, rec)
}
