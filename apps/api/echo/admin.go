package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/society"
	"github.com/trezcool/iems/core/user"
)

type adminApi struct {
	usrSvc *user.Service
	socSvc *society.Service
	evSvc  *event.Service
}

func registerAdminAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := adminApi{
		usrSvc: deps.UserSvc,
		socSvc: deps.SocietySvc,
		evSvc:  deps.EventSvc,
	}

	ag := g.Group("/admin", auth.required(), adminMiddleware(auth))
	ag.GET("/overview", api.overview)
}

// Handlers

// overview loads the counts and the societies with their heads concurrently.
func (api *adminApi) overview(ctx echo.Context) error {
	var (
		resp      OverviewResponse
		usrCounts map[privilege.Level]int
		evCounts  map[event.Status]int
	)
	g, gctx := errgroup.WithContext(ctx.Request().Context())

	g.Go(func() (err error) {
		usrCounts, err = api.usrSvc.CountByPrivilege(gctx)
		return errors.Wrap(err, "counting users")
	})
	g.Go(func() (err error) {
		evCounts, err = api.evSvc.CountByStatus(gctx)
		return errors.Wrap(err, "counting events")
	})
	g.Go(func() error {
		socs, err := api.socSvc.List(gctx, nil)
		if err != nil {
			return errors.Wrap(err, "listing societies")
		}

		resp.Societies = make([]SocietyResponse, len(socs))
		sg, sctx := errgroup.WithContext(gctx)
		for i := range socs {
			i := i
			sg.Go(func() error {
				heads, err := api.socSvc.ResolveHeads(sctx, socs[i])
				if err != nil {
					return errors.Wrapf(err, "resolving heads of %s", socs[i].ID)
				}
				resp.Societies[i] = SocietyResponse{Society: socs[i], HeadDetails: heads}
				return nil
			})
		}
		return sg.Wait()
	})
	if err := g.Wait(); err != nil {
		return err
	}

	resp.Users = UserCounts{
		Total:        usrCounts[privilege.NormalUser] + usrCounts[privilege.SocietyHead] + usrCounts[privilege.Admin],
		NormalUsers:  usrCounts[privilege.NormalUser],
		SocietyHeads: usrCounts[privilege.SocietyHead],
		Admins:       usrCounts[privilege.Admin],
	}
	resp.Events = EventCounts{
		Total:     evCounts[event.StatusDraft] + evCounts[event.StatusPublished] + evCounts[event.StatusConcluded],
		Draft:     evCounts[event.StatusDraft],
		Published: evCounts[event.StatusPublished],
		Concluded: evCounts[event.StatusConcluded],
	}
	return ctx.JSON(http.StatusOK, resp)
}

type (
	UserCounts struct {
		Total        int `json:"total"`
		NormalUsers  int `json:"normal_users"`
		SocietyHeads int `json:"society_heads"`
		Admins       int `json:"admins"`
	}

	EventCounts struct {
		Total     int `json:"total"`
		Draft     int `json:"draft"`
		Published int `json:"published"`
		Concluded int `json:"concluded"`
	}

	OverviewResponse struct {
		Users     UserCounts        `json:"users"`
		Events    EventCounts       `json:"events"`
		Societies []SocietyResponse `json:"societies"`
	}
)
